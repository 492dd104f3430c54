package anyopt

import (
	"sync"

	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
	"gopkg.in/yaml.v3"
)

// An ExtensionKind identifies one of the extensions which
// can be stacked on an optimizer.
type ExtensionKind string

const (
	WeightDecayKind              ExtensionKind = "weight_decay"
	LayerAdaptationKind          ExtensionKind = "layer_adaptation"
	PiecewiseLinearLRKind        ExtensionKind = "piecewise_linear_lr"
	GradientAccumulationKind     ExtensionKind = "gradient_accumulation"
	SlotGradientAccumulationKind ExtensionKind = "slot_gradient_accumulation"
	LookaheadKind                ExtensionKind = "lookahead"
	SlotLookaheadKind            ExtensionKind = "slot_lookahead"
)

type baseFactory func(c Config) (Optimizer, error)

type extensionFactory func(inner Optimizer, c Config) (Optimizer, error)

var baseFactories = map[string]baseFactory{
	"Adam": func(c Config) (Optimizer, error) {
		return AdamFromConfig(c)
	},
	"Momentum": func(c Config) (Optimizer, error) {
		return MomentumFromConfig(c)
	},
	"RMSProp": func(c Config) (Optimizer, error) {
		return RMSPropFromConfig(c)
	},
}

var extensionFactories = map[ExtensionKind]extensionFactory{
	WeightDecayKind: func(inner Optimizer, c Config) (Optimizer, error) {
		return WeightDecayFromConfig(inner, c)
	},
	LayerAdaptationKind: func(inner Optimizer, c Config) (Optimizer, error) {
		return LayerAdaptationFromConfig(inner, c)
	},
	PiecewiseLinearLRKind: func(inner Optimizer, c Config) (Optimizer, error) {
		return PiecewiseLinearLRFromConfig(inner, c)
	},
	GradientAccumulationKind: func(inner Optimizer, c Config) (Optimizer, error) {
		return GradientAccumulationFromConfig(inner, c)
	},
	SlotGradientAccumulationKind: func(inner Optimizer, c Config) (Optimizer, error) {
		return SlotGradientAccumulationFromConfig(inner, c)
	},
	LookaheadKind: func(inner Optimizer, c Config) (Optimizer, error) {
		return LookaheadFromConfig(inner, c)
	},
	SlotLookaheadKind: func(inner Optimizer, c Config) (Optimizer, error) {
		return SlotLookaheadFromConfig(inner, c)
	},
}

// Built-in base variants.
var (
	AdamVariant     = mustRegisterBase("Adam")
	MomentumVariant = mustRegisterBase("Momentum")
	RMSPropVariant  = mustRegisterBase("RMSProp")
)

var registry = struct {
	lock     sync.RWMutex
	variants map[string]*Variant
}{variants: map[string]*Variant{}}

func init() {
	serializer.RegisterTypedDeserializer(stackSerializerType, DeserializeStack)
}

// A Variant describes a kind of optimizer: a base
// optimizer with a list of extensions stacked on top of
// it, innermost first.
//
// Variants are immutable.
type Variant struct {
	name       string
	base       string
	extensions []ExtensionKind
}

// Extend creates a variant which adds an extension on top
// of base.
//
// If name is not empty, the variant is registered under
// that name, so that Lookup and DeserializeWithType can
// find it.
func Extend(base *Variant, kind ExtensionKind, name string) (*Variant, error) {
	if _, ok := extensionFactories[kind]; !ok {
		return nil, configErr("extension", string(kind), "unknown extension kind")
	}
	res := &Variant{
		name:       name,
		base:       base.base,
		extensions: append(append([]ExtensionKind{}, base.extensions...), kind),
	}
	if name != "" {
		if err := register(res); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// NewVariant creates an unregistered variant from a base
// name and a list of extensions, innermost first.
func NewVariant(base string, extensions ...ExtensionKind) (*Variant, error) {
	if _, ok := baseFactories[base]; !ok {
		return nil, configErr("base", base, "unknown base optimizer")
	}
	res := &Variant{base: base}
	for _, kind := range extensions {
		var err error
		if res, err = Extend(res, kind, ""); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Lookup finds a registered variant.
func Lookup(name string) (*Variant, bool) {
	registry.lock.RLock()
	defer registry.lock.RUnlock()
	v, ok := registry.variants[name]
	return v, ok
}

// Name returns the registered name, or "" for an
// unregistered variant.
func (v *Variant) Name() string {
	return v.name
}

// Base returns the name of the base optimizer.
func (v *Variant) Base() string {
	return v.base
}

// Extensions returns the extensions, innermost first.
func (v *Variant) Extensions() []ExtensionKind {
	return append([]ExtensionKind{}, v.extensions...)
}

// New creates an optimizer of this variant.
//
// Each layer reads its own keys from the flat config.
// Missing optional keys take their default values.
func (v *Variant) New(c Config) (*Stack, error) {
	if c == nil {
		c = Config{}
	}
	opt, err := baseFactories[v.base](c)
	if err != nil {
		return nil, err
	}
	for _, kind := range v.extensions {
		opt, err = extensionFactories[kind](opt, c)
		if err != nil {
			return nil, err
		}
	}
	if _, err := opt.Config(); err != nil {
		return nil, err
	}
	return &Stack{Optimizer: opt, Variant: v}, nil
}

// SerializerType returns the unique ID used to serialize
// optimizers of this variant.
// Variants registered with Extend use their own name.
func (v *Variant) SerializerType() string {
	if v.name != "" && v.name != v.base {
		return v.name
	}
	return stackSerializerType
}

func mustRegisterBase(name string) *Variant {
	v := &Variant{name: name, base: name}
	if err := register(v); err != nil {
		panic(err)
	}
	return v
}

func register(v *Variant) error {
	registry.lock.Lock()
	defer registry.lock.Unlock()
	if _, ok := registry.variants[v.name]; ok {
		return configErr("variant name", v.name, "already registered")
	}
	registry.variants[v.name] = v
	if v.name != v.base {
		serializer.RegisterTypedDeserializer(v.name, DeserializeStack)
	}
	return nil
}

const stackSerializerType = "github.com/unixpickle/anyopt.Stack"

// A Document is the encoded form of a Stack.
type Document struct {
	// Variant is the registered name, if any.
	Variant string `yaml:"variant,omitempty"`

	Base       string          `yaml:"base"`
	Extensions []ExtensionKind `yaml:"extensions,omitempty,flow"`
	Config     Config          `yaml:"config"`
}

// ParseDocument decodes a YAML document.
func ParseDocument(data []byte) (*Document, error) {
	var res Document
	if err := yaml.Unmarshal(data, &res); err != nil {
		return nil, essentials.AddCtx("parse document", err)
	}
	res.Config = res.Config.normalize()
	return &res, nil
}

// VariantOf resolves the variant a document describes.
//
// A registered variant name takes precedence, but the
// base and extensions must agree with it if they are set.
func (d *Document) VariantOf() (*Variant, error) {
	if d.Variant != "" {
		if v, ok := Lookup(d.Variant); ok {
			if d.Base != "" && !v.matches(d.Base, d.Extensions) {
				return nil, configErr("variant", d.Variant,
					"registered variant does not match base and extensions")
			}
			return v, nil
		}
		if d.Base == "" {
			return nil, configErr("variant", d.Variant, "unknown variant")
		}
	}
	if d.Base == "" {
		return nil, configErr("base", nil, "missing base optimizer")
	}
	return NewVariant(d.Base, d.Extensions...)
}

// Build creates the optimizer a document describes.
func (d *Document) Build() (*Stack, error) {
	v, err := d.VariantOf()
	if err != nil {
		return nil, err
	}
	return v.New(d.Config)
}

// YAML encodes the document.
func (d *Document) YAML() ([]byte, error) {
	return yaml.Marshal(d)
}

func (v *Variant) matches(base string, extensions []ExtensionKind) bool {
	if v.base != base || len(v.extensions) != len(extensions) {
		return false
	}
	for i, kind := range extensions {
		if v.extensions[i] != kind {
			return false
		}
	}
	return true
}

// A Stack is an optimizer built from a Variant.
//
// A Stack can be serialized with the serializer package,
// in which case it is encoded as a YAML Document.
// Serialization only covers the configuration; use
// MarshalState to save slots and buffers.
type Stack struct {
	Optimizer
	Variant *Variant
}

// DeserializeStack decodes a Stack.
func DeserializeStack(d []byte) (*Stack, error) {
	doc, err := ParseDocument(d)
	if err != nil {
		return nil, essentials.AddCtx("deserialize Stack", err)
	}
	res, err := doc.Build()
	if err != nil {
		return nil, essentials.AddCtx("deserialize Stack", err)
	}
	return res, nil
}

// Unwrap returns the outermost layer.
func (s *Stack) Unwrap() Optimizer {
	return s.Optimizer
}

// Document returns the encoded form of the stack.
func (s *Stack) Document() (*Document, error) {
	c, err := s.Config()
	if err != nil {
		return nil, err
	}
	return &Document{
		Variant:    s.Variant.name,
		Base:       s.Variant.base,
		Extensions: s.Variant.Extensions(),
		Config:     c,
	}, nil
}

// SerializerType returns the unique ID used to serialize
// the stack with the serializer package.
func (s *Stack) SerializerType() string {
	return s.Variant.SerializerType()
}

// Serialize encodes the stack's Document.
func (s *Stack) Serialize() ([]byte, error) {
	doc, err := s.Document()
	if err != nil {
		return nil, err
	}
	return doc.YAML()
}
