package engine

import (
	"math/rand"
	"time"

	"tradingboard/internal/common"

	"github.com/shopspring/decimal"
)

var (
	Borrowers = []string{
		"Acme Corp",
		"Tech Holdings",
		"Global Industries",
		"Summit Partners",
		"Meridian Health",
		"Atlas Logistics",
		"Pinnacle Energy",
		"Harbor Retail",
		"Vertex Media",
		"Northwind Foods",
	}
	Facilities = []string{
		"Term Loan B",
		"Term Loan A",
		"Revolver",
		"Delayed Draw TL",
		"Second Lien",
	}
	Dealers = []string{
		"Goldman Sachs",
		"JP Morgan",
		"Morgan Stanley",
		"Bank of America",
		"Citi",
		"Barclays",
		"Deutsche Bank",
		"Credit Suisse",
		"Wells Fargo",
		"UBS",
	}
	Ratings = []string{
		"BBB+", "BBB", "BBB-",
		"BB+", "BB", "BB-",
		"B+", "B", "B-",
		"CCC+", "CCC",
	}
)

// amountStep is the granularity of generated order sizes.
var amountStep = decimal.NewFromInt(5_000_000)

// Vocabulary is the closed set of descriptive fields generated orders draw
// from. Every list must be non-empty.
type Vocabulary struct {
	Borrowers  []string
	Facilities []string
	Dealers    []string
	Ratings    []string
}

func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Borrowers:  Borrowers,
		Facilities: Facilities,
		Dealers:    Dealers,
		Ratings:    Ratings,
	}
}

// Generator synthesises random orders for the simulated market.
type Generator struct {
	vocab  Vocabulary
	policy Policy
	rng    *rand.Rand
}

func NewGenerator(vocab Vocabulary, policy Policy, rng *rand.Rand) *Generator {
	return &Generator{
		vocab:  vocab,
		policy: policy,
		rng:    rng,
	}
}

func (g *Generator) pick(words []string) string {
	return words[g.rng.Intn(len(words))]
}

// Order returns a new order stamped with at. Prices fall in the policy's
// price band and spreads in [SpreadMin, SpreadMax).
func (g *Generator) Order(at time.Time) common.Order {
	band := g.policy.PriceMax - g.policy.PriceMin
	price := decimal.NewFromFloat(g.policy.PriceMin + g.rng.Float64()*band)

	side := common.Bid
	if g.rng.Intn(2) == 1 {
		side = common.Ask
	}

	return common.Order{
		ID:        common.NewOrderID(),
		Borrower:  g.pick(g.vocab.Borrowers),
		Facility:  g.pick(g.vocab.Facilities),
		Dealer:    g.pick(g.vocab.Dealers),
		Rating:    g.pick(g.vocab.Ratings),
		Amount:    amountStep.Mul(decimal.NewFromInt(int64(g.rng.Intn(g.policy.AmountSteps) + 1))),
		Price:     common.RoundPrice(price),
		SpreadBps: g.policy.SpreadMin + g.rng.Intn(g.policy.SpreadMax-g.policy.SpreadMin),
		Side:      side,
		UpdatedAt: at,
	}
}

// PriceDelta returns a uniform adjustment in [-PriceDelta, +PriceDelta).
func (g *Generator) PriceDelta() decimal.Decimal {
	return decimal.NewFromFloat((g.rng.Float64()*2 - 1) * g.policy.PriceDelta)
}
