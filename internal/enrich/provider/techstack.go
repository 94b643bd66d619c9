package provider

import (
	"context"
	"strings"

	"github.com/sells-group/leads-cli/internal/model"
	"github.com/sells-group/leads-cli/pkg/techstack"
)

// TechStack detects website technologies. Free tier, first in the waterfall.
type TechStack struct {
	detector *techstack.Detector
}

// NewTechStack creates the tech stack provider.
func NewTechStack(d *techstack.Detector) *TechStack {
	return &TechStack{detector: d}
}

func (p *TechStack) Name() string           { return "techstack" }
func (p *TechStack) Tier() int              { return TierFree }
func (p *TechStack) CostPerLookup() float64 { return 0 }
func (p *TechStack) Available() bool        { return p.detector != nil }

func (p *TechStack) Lookup(ctx context.Context, in Input) (model.FieldBag, error) {
	siteURL := in.CompanyWebsite
	if siteURL == "" && in.CompanyDomain != "" {
		siteURL = in.CompanyDomain
	}
	if siteURL == "" {
		return model.FieldBag{}, nil
	}
	if !strings.Contains(siteURL, "://") {
		siteURL = "https://" + siteURL
	}

	det, err := p.detector.Detect(ctx, siteURL)
	if err != nil {
		return nil, err
	}

	bag := model.FieldBag{}
	if len(det.Technologies) > 0 {
		bag[model.FieldTechStack] = det.Technologies
	}
	if len(det.Categories) > 0 {
		bag[model.FieldTechCategories] = det.Categories
	}
	if det.CMS != "" {
		bag[model.FieldCMS] = det.CMS
	}
	if len(det.Analytics) > 0 {
		bag[model.FieldAnalytics] = det.Analytics
	}
	return bag, nil
}
