// Package scenarios holds the catalog of buyer premises that seed each
// generated conversation.
package scenarios

import (
	_ "embed"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-dialoggen/pkg/apperrors"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

type catalogDocument struct {
	Vehicles  []Vehicle                 `yaml:"vehicles"`
	Years     []string                  `yaml:"years"`
	States    []string                  `yaml:"states"`
	Scenarios map[Kind]scenarioDocument `yaml:"scenarios"`
}

type scenarioDocument struct {
	Template string              `yaml:"template"`
	Domains  map[string][]string `yaml:"domains"`
	Intents  []string            `yaml:"intents"`
	Plans    []FinancingPlan     `yaml:"plans"`
}

// Selection is one resolved draw from the catalog.
type Selection struct {
	Scenario Scenario
	Kind     Kind
	Context  string
	Intent   string
	State    string // Where the buyer lives
}

// Catalog is an immutable, validated set of scenarios. All draws use the
// random source given at load time.
type Catalog struct {
	scenarios []Scenario
	states    []string
	rng       *rand.Rand
}

// NewRand returns a PCG-backed random source. A zero seed is replaced by the
// current time.
func NewRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// DefaultCatalog loads the embedded catalog.
func DefaultCatalog(rng *rand.Rand) (*Catalog, error) {
	return LoadCatalog(defaultCatalogYAML, rng)
}

// LoadCatalogFile loads a catalog from a YAML file.
func LoadCatalogFile(path string, rng *rand.Rand) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario catalog: %w", err)
	}
	cat, err := LoadCatalog(data, rng)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cat, nil
}

// LoadCatalog parses and validates a YAML catalog. Every kind in AllKinds
// must be defined with non-empty domains and intents, and every template
// placeholder must be fillable. A nil rng is seeded from the clock.
func LoadCatalog(data []byte, rng *rand.Rand) (*Catalog, error) {
	var doc catalogDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse: %v", apperrors.ErrInvalidScenarioCatalog, err)
	}

	if err := doc.validateTables(); err != nil {
		return nil, err
	}

	known := make(map[Kind]bool, len(AllKinds))
	for _, k := range AllKinds {
		known[k] = true
	}
	for k := range doc.Scenarios {
		if !known[k] {
			return nil, invalid("unknown scenario kind %q", k)
		}
	}

	if rng == nil {
		rng = NewRand(0)
	}

	cat := &Catalog{
		scenarios: make([]Scenario, 0, len(AllKinds)),
		states:    doc.States,
		rng:       rng,
	}
	for _, kind := range AllKinds {
		sd, ok := doc.Scenarios[kind]
		if !ok {
			return nil, invalid("scenario %q is not defined", kind)
		}
		s, err := doc.build(kind, sd)
		if err != nil {
			return nil, err
		}
		cat.scenarios = append(cat.scenarios, s)
	}

	return cat, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", apperrors.ErrInvalidScenarioCatalog, fmt.Sprintf(format, args...))
}

func (d *catalogDocument) validateTables() error {
	if len(d.Vehicles) == 0 {
		return invalid("vehicles table is empty")
	}
	for _, v := range d.Vehicles {
		if strings.TrimSpace(v.Brand) == "" {
			return invalid("vehicle with empty brand")
		}
		if err := nonEmpty("models of "+v.Brand, v.Models); err != nil {
			return err
		}
	}
	if err := nonEmpty("years", d.Years); err != nil {
		return err
	}
	return nonEmpty("states", d.States)
}

func nonEmpty(name string, values []string) error {
	if len(values) == 0 {
		return invalid("%s is empty", name)
	}
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return invalid("%s contains a blank value", name)
		}
	}
	return nil
}

// build validates one scenario document and returns the kind's Scenario.
func (d *catalogDocument) build(kind Kind, sd scenarioDocument) (Scenario, error) {
	if strings.TrimSpace(sd.Template) == "" {
		return nil, invalid("scenario %q has no template", kind)
	}
	if err := nonEmpty(fmt.Sprintf("intents of %q", kind), sd.Intents); err != nil {
		return nil, err
	}
	for name, values := range sd.Domains {
		if err := nonEmpty(fmt.Sprintf("domain %q of %q", name, kind), values); err != nil {
			return nil, err
		}
	}

	fillable := make(map[string]bool)
	for name := range sd.Domains {
		fillable[name] = true
	}
	for _, name := range providedBy[kind] {
		fillable[name] = true
	}
	for _, name := range placeholders(sd.Template) {
		if !fillable[name] {
			return nil, invalid("scenario %q: placeholder {%s} has no domain", kind, name)
		}
	}

	b := base{kind: kind, template: sd.Template, domains: sd.Domains, intents: sd.Intents}
	switch kind {
	case KindSpecificModel:
		return &ModelScenario{base: b, vehicles: d.Vehicles, years: d.Years}, nil
	case KindSpecificBrand:
		return &BrandScenario{base: b, vehicles: d.Vehicles}, nil
	case KindTradeIn:
		return &TradeInScenario{base: b, vehicles: d.Vehicles, years: d.Years}, nil
	case KindFinancing:
		if len(sd.Plans) == 0 {
			return nil, invalid("scenario %q has no plans", kind)
		}
		for _, p := range sd.Plans {
			if strings.TrimSpace(p.Installments) == "" || strings.TrimSpace(p.DownPayment) == "" {
				return nil, invalid("scenario %q has an incomplete plan", kind)
			}
		}
		return &FinancingScenario{base: b, plans: sd.Plans}, nil
	default:
		return &DomainScenario{base: b}, nil
	}
}

// Select draws a scenario uniformly, resolves it, and draws the buyer's state.
func (c *Catalog) Select() Selection {
	return c.SelectFrom(c.scenarios[c.rng.IntN(len(c.scenarios))])
}

// SelectFrom resolves s and draws the buyer's state.
func (c *Catalog) SelectFrom(s Scenario) Selection {
	context, intent := s.Resolve(c.rng)
	return Selection{
		Scenario: s,
		Kind:     s.Kind(),
		Context:  context,
		Intent:   intent,
		State:    pick(c.rng, c.states),
	}
}

// Scenario returns the scenario of the given kind.
func (c *Catalog) Scenario(kind Kind) (Scenario, bool) {
	for _, s := range c.scenarios {
		if s.Kind() == kind {
			return s, true
		}
	}
	return nil, false
}
