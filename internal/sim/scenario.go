// Package sim provides scripted auction scenarios for demos and smoke runs.
package sim

import (
	"math/rand"
	"time"

	"vaultbid.org/internal/escrow"
)

type Participant struct {
	Address string
	Label   string
	Funding uint64
}

type Scenario struct {
	Name       string
	Seller     Participant
	Bidders    []Participant
	Assets     []escrow.AssetRef
	StartPrice uint64
	Duration   time.Duration
}

// ShowcaseScenario is the default demo: a two-asset bundle contested by
// three funded bidders.
func ShowcaseScenario() Scenario {
	return Scenario{
		Name:   "SealedBundleShowcase",
		Seller: Participant{Address: "addr-gallery-001", Label: "Meridian Gallery", Funding: 0},
		Bidders: []Participant{
			{Address: "addr-collector-001", Label: "Northside Collector", Funding: 50_000},
			{Address: "addr-collector-002", Label: "Harbor Trust", Funding: 75_000},
			{Address: "addr-collector-003", Label: "Atelier Fund", Funding: 60_000},
		},
		Assets: []escrow.AssetRef{
			{Kind: escrow.KindUnique, Collection: "meridian-prints", TokenID: 11},
			{Kind: escrow.KindUnique, Collection: "meridian-sculpt", TokenID: 4},
		},
		StartPrice: 1_000,
		Duration:   time.Hour,
	}
}

// Generator emits the next bidding step for a scenario.
type Generator struct {
	scenario Scenario
	rnd      *rand.Rand
	leader   string
}

func NewGenerator(seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{scenario: ShowcaseScenario(), rnd: rand.New(rand.NewSource(seed))}
}

func (g *Generator) Scenario() Scenario { return g.scenario }

// NextBidder picks a bidder other than the current leader so every step
// produces an admissible bid.
func (g *Generator) NextBidder() string {
	bidders := g.scenario.Bidders
	if len(bidders) == 0 {
		panic("scenario requires at least one bidder")
	}
	for {
		candidate := bidders[g.rnd.Intn(len(bidders))].Address
		if candidate != g.leader || len(bidders) == 1 {
			g.leader = candidate
			return candidate
		}
	}
}

// OverrideBidders replaces the scenario's bidder set.
func (g *Generator) OverrideBidders(bidders []Participant) {
	g.scenario.Bidders = append([]Participant(nil), bidders...)
	g.leader = ""
}
