// Command kontrakt is the operational CLI around the engine: it runs a
// manifest of specifications against a profile, inspects finished trace
// directories, archives them, and summarizes recorded verdicts.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/kontrakt-labs/kontrakt/pkg/config"
	"github.com/kontrakt-labs/kontrakt/pkg/engine"
	"github.com/kontrakt-labs/kontrakt/pkg/factory"
	"github.com/kontrakt-labs/kontrakt/pkg/generator"
	"github.com/kontrakt-labs/kontrakt/pkg/trace/archive"
	"github.com/kontrakt-labs/kontrakt/pkg/trace/tracestore"
)

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		fmt.Fprintln(stderr, "usage: kontrakt <run|inspect|archive|summary> [flags]")
		return 2
	}

	var err error
	switch args[1] {
	case "run":
		err = runEngine(args[2:], stdout)
	case "inspect":
		err = runInspect(args[2:], stdout)
	case "archive":
		err = runArchive(args[2:], stdout)
	case "summary":
		err = runSummary(args[2:], stdout)
	default:
		fmt.Fprintf(stderr, "kontrakt: unknown command %q\n", args[1])
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "kontrakt: %v\n", err)
		return 1
	}
	return 0
}

// runEngine loads a profile and a manifest, executes every specification, and
// records the verdicts in the local index.
func runEngine(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	profilePath := fs.String("profile", "", "engine profile yaml (defaults apply when omitted)")
	manifestPath := fs.String("manifest", "", "types and specifications yaml")
	dbPath := fs.String("db", "kontrakt.db", "verdict index database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *manifestPath == "" {
		return fmt.Errorf("run requires -manifest")
	}

	profile := config.DefaultProfile()
	if *profilePath != "" {
		var err error
		profile, err = config.LoadProfile(*profilePath)
		if err != nil {
			return err
		}
	}

	manifest, err := config.LoadManifest(*manifestPath)
	if err != nil {
		return err
	}
	resolver := manifest.BuildRegistry()
	specs, rules := manifest.BuildSpecs()

	genreg := generator.NewRegistry(generator.DefaultStrategies()...)
	f := factory.New(factory.Config{
		Resolver:     resolver,
		Constructors: factory.NewConstructorRegistry(),
		Mocks:        factory.SimpleMockingEngine{},
		Scenario:     factory.SimpleScenarioControl{},
		Registry:     genreg,
	})

	e, err := engine.New(engine.Config{
		Profile:  profile,
		Resolver: resolver,
		Registry: genreg,
		Factory:  f,
		Rules:    rules,
	})
	if err != nil {
		return err
	}

	store, err := tracestore.Open(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	results, err := e.Run(ctx, specs)
	if err != nil {
		return err
	}

	counts := make(map[string]int)
	for _, r := range results {
		if err := store.Record(ctx, e.RunID(), r); err != nil {
			return err
		}
		counts[string(r.Status)]++
		fmt.Fprintf(stdout, "%-16s %s\n", r.Status, r.Target.String())
	}

	fmt.Fprintf(stdout, "run: %s\n", e.RunID())
	for _, status := range []string{"PASSED", "FAILED", "EXECUTION_ERROR"} {
		if n, ok := counts[status]; ok {
			fmt.Fprintf(stdout, "%-16s %d\n", status, n)
		}
	}
	return nil
}

// runInspect tallies the NDJSON events of every worker file in a trace dir.
func runInspect(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	dir := fs.String("dir", "kontrakt-trace", "trace directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	paths, err := filepath.Glob(filepath.Join(*dir, "worker-*.ndjson"))
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no worker trace files under %s", *dir)
	}

	phases := make(map[string]int)
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)
		for scanner.Scan() {
			var line struct {
				Phase string `json:"phase"`
			}
			if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
				_ = f.Close()
				return fmt.Errorf("malformed trace line in %s: %w", p, err)
			}
			phases[line.Phase]++
		}
		if err := scanner.Err(); err != nil {
			_ = f.Close()
			return err
		}
		_ = f.Close()
	}

	fmt.Fprintf(stdout, "workers: %d\n", len(paths))
	for _, phase := range []string{"DESIGN", "EXECUTION", "VERIFICATION", "RESULT"} {
		fmt.Fprintf(stdout, "%-13s %d\n", phase, phases[phase])
	}
	return nil
}

// runArchive uploads a trace directory per the profile's archive settings.
func runArchive(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("archive", flag.ContinueOnError)
	profilePath := fs.String("profile", "", "engine profile yaml")
	dir := fs.String("dir", "", "trace directory (defaults to the profile's)")
	runID := fs.String("run", "", "run id to archive under")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *profilePath == "" {
		return fmt.Errorf("archive requires -profile")
	}

	profile, err := config.LoadProfile(*profilePath)
	if err != nil {
		return err
	}
	if !profile.Archive.Enabled {
		return fmt.Errorf("profile %q does not enable archiving", profile.Name)
	}
	if *dir == "" {
		*dir = profile.TraceDir
	}
	if *runID == "" {
		return fmt.Errorf("archive requires -run")
	}

	ctx := context.Background()
	up, err := archive.NewUploader(ctx, archive.Config{
		Bucket:   profile.Archive.Bucket,
		Region:   profile.Archive.Region,
		Endpoint: profile.Archive.Endpoint,
		Prefix:   profile.Archive.Prefix,
	})
	if err != nil {
		return err
	}

	keys, err := up.ArchiveDir(ctx, *runID, *dir)
	if err != nil {
		return err
	}
	for _, k := range keys {
		fmt.Fprintln(stdout, k)
	}
	return nil
}

// runSummary prints the verdict counts recorded for a run.
func runSummary(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("summary", flag.ContinueOnError)
	dbPath := fs.String("db", "kontrakt.db", "verdict index database")
	runID := fs.String("run", "", "run id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return fmt.Errorf("summary requires -run")
	}

	store, err := tracestore.Open(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	counts, err := store.CountByStatus(context.Background(), *runID)
	if err != nil {
		return err
	}
	for status, n := range counts {
		fmt.Fprintf(stdout, "%-16s %d\n", status, n)
	}
	return nil
}
