package generator

import (
	"fmt"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/kontrakt-labs/kontrakt/pkg/plan"
	"github.com/kontrakt-labs/kontrakt/pkg/typesys"
)

// Well-known atomic type ids handled by the builtin strategy.
const (
	TypeString  typesys.TypeID = "string"
	TypeInt     typesys.TypeID = "int"
	TypeInt64   typesys.TypeID = "int64"
	TypeFloat64 typesys.TypeID = "float64"
	TypeBool    typesys.TypeID = "bool"
	TypeTime    typesys.TypeID = "time"
)

const stringAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// StringGenerator produces deterministic strings. Output is normalized to
// NFC so equal seeds yield byte-identical values.
type StringGenerator struct {
	MinLen, MaxLen int
}

func (g StringGenerator) Generate(ctx Context, t typesys.TypeReference, attrs []typesys.Attribute) (any, error) {
	minLen, maxLen := g.MinLen, g.MaxLen
	if maxLen <= 0 {
		minLen, maxLen = 4, 16
	}
	if a, ok := typesys.FindAttribute(attrs, "length"); ok {
		if v, ok := a.IntArg("min"); ok {
			minLen = v
		}
		if v, ok := a.IntArg("max"); ok {
			maxLen = v
		}
	}
	n := ctx.Rand.IntBetween(minLen, maxLen)
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = stringAlphabet[ctx.Rand.Intn(len(stringAlphabet))]
	}
	return norm.NFC.String(string(buf)), nil
}

// IntGenerator produces deterministic ints, honoring min/max attribute args.
type IntGenerator struct{}

func (IntGenerator) Generate(ctx Context, t typesys.TypeReference, attrs []typesys.Attribute) (any, error) {
	lo, hi := 0, 1<<20
	if a, ok := typesys.FindAttribute(attrs, "range"); ok {
		if v, ok := a.IntArg("min"); ok {
			lo = v
		}
		if v, ok := a.IntArg("max"); ok {
			hi = v
		}
	}
	return ctx.Rand.IntBetween(lo, hi), nil
}

type Int64Generator struct{}

func (Int64Generator) Generate(ctx Context, t typesys.TypeReference, attrs []typesys.Attribute) (any, error) {
	return int64(ctx.Rand.Uint64() >> 1), nil
}

type Float64Generator struct{}

func (Float64Generator) Generate(ctx Context, t typesys.TypeReference, attrs []typesys.Attribute) (any, error) {
	return ctx.Rand.Float64(), nil
}

type BoolGenerator struct{}

func (BoolGenerator) Generate(ctx Context, t typesys.TypeReference, attrs []typesys.Attribute) (any, error) {
	return ctx.Rand.Bool(), nil
}

// timeEpoch anchors generated instants. The base must not depend on the wall
// clock: equal seeds have to reproduce equal values across runs.
var timeEpoch = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

// TimeGenerator produces deterministic instants: a seeded offset within ten
// years of a fixed epoch, in whole seconds so serialization is stable.
type TimeGenerator struct{}

func (TimeGenerator) Generate(ctx Context, t typesys.TypeReference, attrs []typesys.Attribute) (any, error) {
	offset := time.Duration(ctx.Rand.Intn(10*365*24))*time.Hour +
		time.Duration(ctx.Rand.Intn(3600))*time.Second
	return timeEpoch.Add(offset), nil
}

// ContainerGenerator is the builtin generator for composite, collection, map
// and array nodes. It implements every container capability protocol.
type ContainerGenerator struct{}

func (ContainerGenerator) Generate(ctx Context, t typesys.TypeReference, attrs []typesys.Attribute) (any, error) {
	return nil, fmt.Errorf("generator: container generator for %s has no scalar form", t)
}

func (ContainerGenerator) AssembleComposite(ctx Context, t typesys.TypeReference, fields map[string]any) (any, error) {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out, nil
}

func (ContainerGenerator) MakeSlice(ctx Context, t typesys.TypeReference, elems []any) (any, error) {
	out := make([]any, len(elems))
	copy(out, elems)
	return out, nil
}

func (ContainerGenerator) NewCollection(t typesys.TypeReference) (MutableCollection, error) {
	return &sliceCollection{}, nil
}

func (ContainerGenerator) NewMap(t typesys.TypeReference) (MutableMap, error) {
	return &stringKeyMap{entries: make(map[string]any)}, nil
}

type sliceCollection struct{ elems []any }

func (c *sliceCollection) Append(v any) { c.elems = append(c.elems, v) }

func (c *sliceCollection) Value() any {
	if c.elems == nil {
		return []any{}
	}
	return c.elems
}

// stringKeyMap keys entries by the string form of the generated key. Put
// overwrites on collision, so the last written value for a key wins.
type stringKeyMap struct{ entries map[string]any }

func (m *stringKeyMap) Put(key, value any) { m.entries[fmt.Sprint(key)] = value }

func (m *stringKeyMap) Value() any { return m.entries }

// AtomicStrategy selects builtin generators for the well-known atomic types.
type AtomicStrategy struct{}

func (AtomicStrategy) Name() string { return "builtin-atomic" }

func (s AtomicStrategy) Select(node *plan.UnlinkedNode) (*Selection, bool) {
	if node.Kind != plan.KindAtomic {
		return nil, false
	}
	var g Generator
	switch node.Type.ID {
	case TypeString:
		g = StringGenerator{}
	case TypeInt:
		g = IntGenerator{}
	case TypeInt64:
		g = Int64Generator{}
	case TypeFloat64:
		g = Float64Generator{}
	case TypeBool:
		g = BoolGenerator{}
	case TypeTime:
		g = TimeGenerator{}
	default:
		return nil, false
	}
	return &Selection{Generator: g, Source: DefaultDecision(s.Name())}, true
}

// ContainerStrategy selects the builtin container generator for composite,
// collection and map nodes.
type ContainerStrategy struct{}

func (ContainerStrategy) Name() string { return "builtin-container" }

func (s ContainerStrategy) Select(node *plan.UnlinkedNode) (*Selection, bool) {
	switch node.Kind {
	case plan.KindComposite, plan.KindCollection, plan.KindMap:
		return &Selection{Generator: ContainerGenerator{}, Source: DefaultDecision(s.Name())}, true
	default:
		return nil, false
	}
}

// AttributeStrategy selects registered generators keyed by attribute name,
// letting schema annotations pick domain-specific generators.
type AttributeStrategy struct {
	name       string
	generators map[string]Generator
}

func NewAttributeStrategy(generators map[string]Generator) *AttributeStrategy {
	return &AttributeStrategy{name: "attribute", generators: generators}
}

func (s *AttributeStrategy) Name() string { return s.name }

func (s *AttributeStrategy) Select(node *plan.UnlinkedNode) (*Selection, bool) {
	for _, a := range node.Attributes {
		if g, ok := s.generators[a.Name]; ok {
			return &Selection{Generator: g, Source: DefaultDecision(s.name + ":" + a.Name)}, true
		}
	}
	return nil, false
}

// DefaultStrategies is the ordered strategy chain installed by the engine.
func DefaultStrategies() []SelectionStrategy {
	return []SelectionStrategy{AtomicStrategy{}, ContainerStrategy{}}
}
