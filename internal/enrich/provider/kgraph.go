package provider

import (
	"context"

	"github.com/sells-group/leads-cli/internal/model"
	"github.com/sells-group/leads-cli/pkg/kgraph"
)

// KGraph looks up company descriptions in the Google Knowledge Graph.
// Free tier.
type KGraph struct {
	client kgraph.Client
}

// NewKGraph creates the Knowledge Graph provider.
func NewKGraph(c kgraph.Client) *KGraph {
	return &KGraph{client: c}
}

func (p *KGraph) Name() string           { return "kgraph" }
func (p *KGraph) Tier() int              { return TierFree }
func (p *KGraph) CostPerLookup() float64 { return 0 }
func (p *KGraph) Available() bool        { return p.client != nil }

func (p *KGraph) Lookup(ctx context.Context, in Input) (model.FieldBag, error) {
	query := in.Query()
	if query == "" {
		return model.FieldBag{}, nil
	}

	entity, err := p.client.SearchEntity(ctx, query)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return model.FieldBag{}, nil
	}

	bag := model.FieldBag{}
	switch {
	case entity.Detail != "":
		bag[model.FieldDescription] = entity.Detail
	case entity.Description != "":
		bag[model.FieldDescription] = entity.Description
	}
	if t := companyType(entity.Types); t != "" {
		bag[model.FieldCompanyType] = t
	}
	return bag, nil
}

// companyType picks the most specific non-generic type label.
func companyType(types []string) string {
	for _, t := range types {
		if t != "Thing" && t != "Organization" {
			return t
		}
	}
	if len(types) > 0 {
		return types[0]
	}
	return ""
}
