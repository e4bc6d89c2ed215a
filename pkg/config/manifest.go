package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kontrakt-labs/kontrakt/pkg/compliance"
	"github.com/kontrakt-labs/kontrakt/pkg/contracts"
	"github.com/kontrakt-labs/kontrakt/pkg/typesys"
)

// Manifest declares the type schemas and test specifications of one engine
// run, as consumed by the CLI. Library embedders register schemas and build
// specifications directly instead.
type Manifest struct {
	Types []ManifestType `yaml:"types"`
	Specs []ManifestSpec `yaml:"specs"`
}

// ManifestType is one declared type schema.
type ManifestType struct {
	ID      string          `yaml:"id"`
	Kind    string          `yaml:"kind"`
	Element string          `yaml:"element,omitempty"`
	Key     string          `yaml:"key,omitempty"`
	Fields  []ManifestField `yaml:"fields,omitempty"`
}

// ManifestField is one named member of a composite type.
type ManifestField struct {
	Name       string              `yaml:"name"`
	Type       string              `yaml:"type"`
	Attributes []ManifestAttribute `yaml:"attributes,omitempty"`
}

// ManifestAttribute mirrors typesys.Attribute in yaml form.
type ManifestAttribute struct {
	Name string            `yaml:"name"`
	Args map[string]string `yaml:"args,omitempty"`
}

// ManifestSpec is one test specification entry.
type ManifestSpec struct {
	Target     string            `yaml:"target"`
	Seed       *uint64           `yaml:"seed,omitempty"`
	Compliance []ComplianceBlock `yaml:"compliance,omitempty"`
}

// ComplianceBlock binds rules to a generated data type.
type ComplianceBlock struct {
	Type  string            `yaml:"type"`
	Rules []compliance.Rule `yaml:"rules"`
}

// wellKnownAtomics are registered implicitly so manifests can reference the
// builtin generator types without declaring them.
var wellKnownAtomics = []string{"string", "int", "int64", "float64", "bool", "time"}

// LoadManifest reads and validates a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("config: parse manifest %s: %w", path, err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	if len(m.Specs) == 0 {
		return fmt.Errorf("config: manifest declares no specs")
	}
	for _, t := range m.Types {
		if t.ID == "" {
			return fmt.Errorf("config: manifest type without id")
		}
		switch t.Kind {
		case "atomic", "interface":
		case "composite":
			if len(t.Fields) == 0 {
				return fmt.Errorf("config: composite type %q has no fields", t.ID)
			}
		case "collection", "array":
			if t.Element == "" {
				return fmt.Errorf("config: container type %q has no element", t.ID)
			}
		case "map":
			if t.Key == "" || t.Element == "" {
				return fmt.Errorf("config: map type %q needs key and element", t.ID)
			}
		default:
			return fmt.Errorf("config: type %q has unknown kind %q", t.ID, t.Kind)
		}
	}
	for _, s := range m.Specs {
		if s.Target == "" {
			return fmt.Errorf("config: spec without target")
		}
	}
	return nil
}

// BuildRegistry registers every declared type, plus the well-known atomics,
// into a fresh resolver registry.
func (m *Manifest) BuildRegistry() *typesys.Registry {
	reg := typesys.NewRegistry()
	for _, id := range wellKnownAtomics {
		reg.Register(typesys.Ref(id), &typesys.TypeDescriptor{Kind: typesys.KindAtomic})
	}

	for _, t := range m.Types {
		desc := &typesys.TypeDescriptor{Kind: manifestKind(t.Kind)}
		if t.Element != "" {
			elem := typesys.Ref(t.Element)
			desc.Element = &elem
		}
		if t.Key != "" {
			key := typesys.Ref(t.Key)
			desc.Key = &key
		}
		for _, f := range t.Fields {
			field := typesys.Field{Name: f.Name, Type: typesys.Ref(f.Type)}
			for _, a := range f.Attributes {
				field.Attributes = append(field.Attributes, typesys.Attribute{Name: a.Name, Args: a.Args})
			}
			desc.Fields = append(desc.Fields, field)
		}
		reg.Register(typesys.Ref(t.ID), desc)
	}
	return reg
}

func manifestKind(kind string) typesys.Kind {
	switch kind {
	case "atomic":
		return typesys.KindAtomic
	case "composite":
		return typesys.KindComposite
	case "collection":
		return typesys.KindCollection
	case "array":
		return typesys.KindArray
	case "map":
		return typesys.KindMap
	case "interface":
		return typesys.KindInterface
	default:
		return typesys.KindUnknown
	}
}

// BuildSpecs translates the manifest's spec entries into specifications and
// the per-type compliance rule table.
func (m *Manifest) BuildSpecs() ([]contracts.TestSpecification, map[typesys.TypeID][]compliance.Rule) {
	rules := make(map[typesys.TypeID][]compliance.Rule)
	specs := make([]contracts.TestSpecification, 0, len(m.Specs))

	for _, s := range m.Specs {
		spec := contracts.TestSpecification{
			Target: typesys.Ref(s.Target),
			Seed:   s.Seed,
		}
		if len(s.Compliance) == 0 {
			spec.Modes = []contracts.Mode{contracts.UserScenario()}
		}
		for _, c := range s.Compliance {
			ref := typesys.Ref(c.Type)
			spec.Modes = append(spec.Modes, contracts.DataCompliance(ref))
			rules[ref.ID] = append(rules[ref.ID], c.Rules...)
		}
		specs = append(specs, spec)
	}
	return specs, rules
}
