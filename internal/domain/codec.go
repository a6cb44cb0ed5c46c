package domain

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// LocusKind selects the decode rule applied to a locus value.
type LocusKind int

const (
	// LocusCatalog indexes into a configured list of strings.
	LocusCatalog LocusKind = iota
	// LocusEnum indexes into a closed Go enumeration.
	LocusEnum
	// LocusScaled divides the value by the catalog scale factor.
	LocusScaled
	// LocusInteger uses the value as is.
	LocusInteger
)

// Locus is one gene position with inclusive bounds.
type Locus struct {
	Name string
	Min  int
	Max  int
	Kind LocusKind
}

// Contains reports whether v lies within the locus bounds.
func (l Locus) Contains(v int) bool { return v >= l.Min && v <= l.Max }

// clamp forces v into the locus bounds.
func (l Locus) clamp(v int) int {
	if v < l.Min {
		return l.Min
	}
	if v > l.Max {
		return l.Max
	}
	return v
}

// Locus indices in the genotype. The order is part of the encoding and must
// not change between runs that share fixtures.
const (
	LocusSystemPrompt = iota
	LocusPromptTemplate
	LocusInstructionStyle
	LocusToolPolicy
	LocusTemperature
	LocusMaxTokens
	LocusTopP
	LocusTopK
	LocusRepeatPenalty
	LocusResponseFormat

	// GenotypeLength is the number of loci in the schema.
	GenotypeLength
)

// IntRange is an inclusive integer interval used for numeric loci.
type IntRange struct {
	Min int `json:"min" yaml:"min" validate:"gte=0"`
	Max int `json:"max" yaml:"max" validate:"gtefield=Min"`
}

// Catalog holds the configurable vocabulary and numeric ranges of the
// genotype schema. Scaled loci (temperature, top_p, repeat_penalty) store
// integers that are divided by ScaleFactor on decode.
type Catalog struct {
	SystemPrompts   []string `json:"system_prompts" yaml:"system_prompts" validate:"required,min=1,dive,required"`
	PromptTemplates []string `json:"prompt_templates" yaml:"prompt_templates" validate:"required,min=1,dive,required"`
	ResponseFormats []string `json:"response_formats" yaml:"response_formats" validate:"required,min=1,dive,required"`

	ScaleFactor float64 `json:"scale_factor" yaml:"scale_factor" validate:"gt=0"`

	Temperature   IntRange `json:"temperature" yaml:"temperature"`
	MaxTokens     IntRange `json:"max_tokens" yaml:"max_tokens"`
	TopP          IntRange `json:"top_p" yaml:"top_p"`
	TopK          IntRange `json:"top_k" yaml:"top_k"`
	RepeatPenalty IntRange `json:"repeat_penalty" yaml:"repeat_penalty"`
}

// DefaultCatalog returns the reference prompt vocabulary and parameter ranges.
func DefaultCatalog() Catalog {
	return Catalog{
		SystemPrompts: []string{
			"You are a helpful AI assistant",
			"You are a precise and accurate assistant",
			"You are a careful reasoning assistant",
			"You are an expert domain assistant",
			"You are a concise and direct assistant",
			"You are a thorough and analytical assistant",
		},
		PromptTemplates: []string{
			"{system_prompt}\n\nTask: {task}\n\nResponse:",
			"{system_prompt}\n\n{task}\n\nPlease provide a detailed response:",
			"System: {system_prompt}\n\nUser: {task}\n\nAssistant:",
			"{system_prompt}\n\nInstruction: {task}\n\nOutput:",
			"Context: {system_prompt}\n\nQuery: {task}\n\nAnswer:",
		},
		ResponseFormats: []string{"text", "json", "markdown"},
		ScaleFactor:     100,
		Temperature:     IntRange{Min: 10, Max: 150},
		MaxTokens:       IntRange{Min: 64, Max: 2048},
		TopP:            IntRange{Min: 10, Max: 100},
		TopK:            IntRange{Min: 1, Max: 100},
		RepeatPenalty:   IntRange{Min: 50, Max: 200},
	}
}

// catalogValidator evaluates the validate tags on Catalog. Field names in
// its errors are the yaml keys.
var catalogValidator = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}()

// Validate checks the structural constraints the codec depends on. The
// struct tags cover presence and ranges; entries that are only whitespace
// are rejected here since no built-in tag trims.
func (c Catalog) Validate() error {
	verr := NewValidationError("catalog")
	if err := catalogValidator.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			verr.AddError(catalogFieldMessage(fe))
		}
	}
	lists := []struct {
		name    string
		entries []string
	}{
		{"system_prompts", c.SystemPrompts},
		{"prompt_templates", c.PromptTemplates},
		{"response_formats", c.ResponseFormats},
	}
	for _, l := range lists {
		for i, e := range l.entries {
			if e != "" && strings.TrimSpace(e) == "" {
				verr.AddError(fmt.Sprintf("%s[%d] must not be blank", l.name, i))
			}
		}
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}

func catalogFieldMessage(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Catalog.")
	switch fe.Tag() {
	case "required", "min":
		return field + " must not be empty"
	case "gt":
		return fmt.Sprintf("%s must be positive, got %v", field, fe.Value())
	case "gte":
		return fmt.Sprintf("%s must be non-negative, got %v", field, fe.Value())
	case "gtefield":
		return fmt.Sprintf("%s must be at least min, got %v", field, fe.Value())
	default:
		return fmt.Sprintf("%s failed %q", field, fe.Tag())
	}
}

// GenomeCodec converts between genotypes and genomes for a fixed Catalog.
// It holds no mutable state and is safe for concurrent use.
type GenomeCodec struct {
	catalog Catalog
	loci    []Locus
}

// NewGenomeCodec builds the locus schema for catalog. It returns a
// ConfigurationError if the catalog is unusable.
func NewGenomeCodec(catalog Catalog) (*GenomeCodec, error) {
	if err := catalog.Validate(); err != nil {
		return nil, NewConfigurationError("catalog", "invalid genome catalog", err)
	}

	loci := make([]Locus, GenotypeLength)
	loci[LocusSystemPrompt] = Locus{Name: "system_prompt", Min: 0, Max: len(catalog.SystemPrompts) - 1, Kind: LocusCatalog}
	loci[LocusPromptTemplate] = Locus{Name: "prompt_template", Min: 0, Max: len(catalog.PromptTemplates) - 1, Kind: LocusCatalog}
	loci[LocusInstructionStyle] = Locus{Name: "instruction_style", Min: 0, Max: len(InstructionStyles) - 1, Kind: LocusEnum}
	loci[LocusToolPolicy] = Locus{Name: "tool_policy", Min: 0, Max: len(ToolPolicies) - 1, Kind: LocusEnum}
	loci[LocusTemperature] = Locus{Name: "temperature", Min: catalog.Temperature.Min, Max: catalog.Temperature.Max, Kind: LocusScaled}
	loci[LocusMaxTokens] = Locus{Name: "max_tokens", Min: catalog.MaxTokens.Min, Max: catalog.MaxTokens.Max, Kind: LocusInteger}
	loci[LocusTopP] = Locus{Name: "top_p", Min: catalog.TopP.Min, Max: catalog.TopP.Max, Kind: LocusScaled}
	loci[LocusTopK] = Locus{Name: "top_k", Min: catalog.TopK.Min, Max: catalog.TopK.Max, Kind: LocusInteger}
	loci[LocusRepeatPenalty] = Locus{Name: "repeat_penalty", Min: catalog.RepeatPenalty.Min, Max: catalog.RepeatPenalty.Max, Kind: LocusScaled}
	loci[LocusResponseFormat] = Locus{Name: "response_format", Min: 0, Max: len(catalog.ResponseFormats) - 1, Kind: LocusCatalog}

	return &GenomeCodec{catalog: catalog, loci: loci}, nil
}

// Loci returns a copy of the ordered locus schema.
func (c *GenomeCodec) Loci() []Locus {
	out := make([]Locus, len(c.loci))
	copy(out, c.loci)
	return out
}

// Catalog returns the catalog the codec was built from.
func (c *GenomeCodec) Catalog() Catalog { return c.catalog }

// Encode draws a genotype uniformly at random within every locus bound.
func (c *GenomeCodec) Encode(rng *rand.Rand) Genotype {
	g := make(Genotype, len(c.loci))
	for i, l := range c.loci {
		g[i] = c.sample(rng, l)
	}
	return g
}

// Resample replaces the value at locus i with a fresh uniform draw.
func (c *GenomeCodec) Resample(rng *rand.Rand, g Genotype, i int) {
	g[i] = c.sample(rng, c.loci[i])
}

func (c *GenomeCodec) sample(rng *rand.Rand, l Locus) int {
	return l.Min + rng.IntN(l.Max-l.Min+1)
}

// Validate returns an EngineInvariantError if g does not match the schema.
func (c *GenomeCodec) Validate(g Genotype) error {
	if len(g) != len(c.loci) {
		return NewEngineInvariantError("genotype_length",
			fmt.Sprintf("genotype has %d loci, schema declares %d", len(g), len(c.loci)))
	}
	for i, l := range c.loci {
		if !l.Contains(g[i]) {
			return NewEngineInvariantError("genotype_bounds",
				fmt.Sprintf("locus %s value %d outside [%d,%d]", l.Name, g[i], l.Min, l.Max))
		}
	}
	return nil
}

// Decode maps a genotype to its Genome. Decoding is total: values outside a
// locus range are clamped and missing loci take the locus minimum.
func (c *GenomeCodec) Decode(g Genotype) Genome {
	at := func(i int) int {
		v := c.loci[i].Min
		if i < len(g) {
			v = g[i]
		}
		return c.loci[i].clamp(v)
	}
	scale := func(i int) float64 { return float64(at(i)) / c.catalog.ScaleFactor }

	return Genome{
		SystemPrompt:     c.catalog.SystemPrompts[at(LocusSystemPrompt)],
		PromptTemplate:   c.catalog.PromptTemplates[at(LocusPromptTemplate)],
		InstructionStyle: InstructionStyles[at(LocusInstructionStyle)],
		ToolPolicy:       ToolPolicies[at(LocusToolPolicy)],
		Temperature:      scale(LocusTemperature),
		MaxTokens:        at(LocusMaxTokens),
		TopP:             scale(LocusTopP),
		TopK:             at(LocusTopK),
		RepeatPenalty:    scale(LocusRepeatPenalty),
		ResponseFormat:   c.catalog.ResponseFormats[at(LocusResponseFormat)],
	}
}
