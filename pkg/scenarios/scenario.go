package scenarios

import (
	"math/rand/v2"
	"regexp"
	"sort"
	"strings"
)

// Kind names a scenario premise.
type Kind string

const (
	KindBudget        Kind = "budget"
	KindSpecificModel Kind = "specific_model"
	KindSpecificBrand Kind = "specific_brand"
	KindCategory      Kind = "category"
	KindFirstPurchase Kind = "first_purchase"
	KindFamily        Kind = "family"
	KindTradeIn       Kind = "trade_in"
	KindSpecificUse   Kind = "specific_use"
	KindFinancing     Kind = "financing"
)

// AllKinds lists every kind in catalog order. Select draws an index into
// this order, so it must stay stable for seeded runs to be reproducible.
var AllKinds = []Kind{
	KindBudget,
	KindSpecificModel,
	KindSpecificBrand,
	KindCategory,
	KindFirstPurchase,
	KindFamily,
	KindTradeIn,
	KindSpecificUse,
	KindFinancing,
}

// Scenario is one conversation premise. Resolve draws its parameters and an
// intent from rng and returns the interpolated context.
type Scenario interface {
	Kind() Kind
	Resolve(rng *rand.Rand) (context, intent string)
}

// Vehicle is a brand with the models sold under it.
type Vehicle struct {
	Brand  string   `yaml:"brand"`
	Models []string `yaml:"models"`
}

// FinancingPlan is an installment count paired with its down payment.
type FinancingPlan struct {
	Installments string `yaml:"installments"`
	DownPayment  string `yaml:"down_payment"`
}

var placeholderPattern = regexp.MustCompile(`\{([a-z_]+)\}`)

// placeholders returns the distinct {name} placeholders of template.
func placeholders(template string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// render substitutes {name} placeholders with values.
func render(template string, values map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		if v, ok := values[match[1:len(match)-1]]; ok {
			return v
		}
		return match
	})
}

func pick(rng *rand.Rand, values []string) string {
	return values[rng.IntN(len(values))]
}

// base carries the fields shared by every scenario kind: the context
// template, the scenario's own parameter domains, and its intents.
type base struct {
	kind     Kind
	template string
	domains  map[string][]string
	intents  []string
}

func (b *base) Kind() Kind { return b.kind }

// drawDomains picks one value per domain, visiting domains in name order so
// a fixed seed always yields the same draw.
func (b *base) drawDomains(rng *rand.Rand, values map[string]string) {
	names := make([]string, 0, len(b.domains))
	for name := range b.domains {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		values[name] = pick(rng, b.domains[name])
	}
}

func (b *base) finish(rng *rand.Rand, values map[string]string) (string, string) {
	b.drawDomains(rng, values)
	return strings.TrimSpace(render(b.template, values)), pick(rng, b.intents)
}

// DomainScenario fills its template from its own parameter domains only.
// Budget, category, first-purchase, family and specific-use premises are
// of this shape.
type DomainScenario struct {
	base
}

func (s *DomainScenario) Resolve(rng *rand.Rand) (string, string) {
	return s.finish(rng, make(map[string]string))
}

// ModelScenario draws a brand, one of its models, and a model year.
type ModelScenario struct {
	base
	vehicles []Vehicle
	years    []string
}

func (s *ModelScenario) Resolve(rng *rand.Rand) (string, string) {
	v := s.vehicles[rng.IntN(len(s.vehicles))]
	values := map[string]string{
		"brand": v.Brand,
		"model": pick(rng, v.Models),
		"year":  pick(rng, s.years),
	}
	return s.finish(rng, values)
}

// BrandScenario draws a brand.
type BrandScenario struct {
	base
	vehicles []Vehicle
}

func (s *BrandScenario) Resolve(rng *rand.Rand) (string, string) {
	values := map[string]string{
		"brand": s.vehicles[rng.IntN(len(s.vehicles))].Brand,
	}
	return s.finish(rng, values)
}

// TradeInScenario draws the vehicle the buyer offers in trade and its year.
type TradeInScenario struct {
	base
	vehicles []Vehicle
	years    []string
}

func (s *TradeInScenario) Resolve(rng *rand.Rand) (string, string) {
	v := s.vehicles[rng.IntN(len(s.vehicles))]
	values := map[string]string{
		"trade_brand": v.Brand,
		"trade_model": pick(rng, v.Models),
		"trade_year":  pick(rng, s.years),
	}
	return s.finish(rng, values)
}

// FinancingScenario draws an installment count and down payment together.
type FinancingScenario struct {
	base
	plans []FinancingPlan
}

func (s *FinancingScenario) Resolve(rng *rand.Rand) (string, string) {
	plan := s.plans[rng.IntN(len(s.plans))]
	values := map[string]string{
		"installments": plan.Installments,
		"down_payment": plan.DownPayment,
	}
	return s.finish(rng, values)
}

// providedBy lists the placeholders each kind fills itself.
var providedBy = map[Kind][]string{
	KindSpecificModel: {"brand", "model", "year"},
	KindSpecificBrand: {"brand"},
	KindTradeIn:       {"trade_brand", "trade_model", "trade_year"},
	KindFinancing:     {"installments", "down_payment"},
}
