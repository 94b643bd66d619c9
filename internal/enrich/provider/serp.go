package provider

import (
	"context"

	"github.com/sells-group/leads-cli/internal/model"
	"github.com/sells-group/leads-cli/pkg/serp"
)

// Serp pulls company facts from Google search results via SerpApi. Paid tier,
// tried only after the free providers.
type Serp struct {
	client serp.Client
	cost   float64
}

// NewSerp creates the SerpApi provider with the given per-lookup rate.
func NewSerp(c serp.Client, costPerLookup float64) *Serp {
	return &Serp{client: c, cost: costPerLookup}
}

func (p *Serp) Name() string           { return "serp" }
func (p *Serp) Tier() int              { return TierPaid }
func (p *Serp) CostPerLookup() float64 { return p.cost }
func (p *Serp) Available() bool        { return p.client != nil }

func (p *Serp) Lookup(ctx context.Context, in Input) (model.FieldBag, error) {
	query := in.Query()
	if query == "" {
		return model.FieldBag{}, nil
	}

	resp, err := p.client.Search(ctx, query+" company")
	if err != nil {
		return nil, err
	}

	bag := model.FieldBag{}
	kg := resp.KnowledgeGraph
	if kg == nil {
		// Fall back to the top snippet as a description.
		if len(resp.OrganicResults) > 0 && resp.OrganicResults[0].Snippet != "" {
			bag[model.FieldDescription] = resp.OrganicResults[0].Snippet
		}
		return bag, nil
	}

	if kg.Description != "" {
		bag[model.FieldDescription] = kg.Description
	}
	if kg.Type != "" {
		bag[model.FieldIndustry] = kg.Type
	}
	if kg.Founded != "" {
		bag[model.FieldFounded] = kg.Founded
	}
	if kg.Headquarters != "" {
		bag[model.FieldHeadquarters] = kg.Headquarters
	}
	if kg.Employees != "" {
		bag[model.FieldEmployeeCount] = kg.Employees
	}
	if kg.Revenue != "" {
		bag[model.FieldRevenue] = kg.Revenue
	}
	return bag, nil
}
