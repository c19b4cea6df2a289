package catalog

import (
	"context"
	"fmt"

	"github.com/jobpulse/harvester/internal/model"
)

// curatedCompanies is the built-in starter catalog: employers with known,
// stable listing systems. Confidence is high because the system tags were
// verified by hand.
var curatedCompanies = []model.DiscoveredCompany{
	{Name: "Stripe", CareerURL: "https://stripe.com/jobs", System: model.SystemGreenhouse, SystemID: "stripe"},
	{Name: "Figma", CareerURL: "https://www.figma.com/careers/", System: model.SystemGreenhouse, SystemID: "figma"},
	{Name: "Databricks", CareerURL: "https://www.databricks.com/company/careers", System: model.SystemGreenhouse, SystemID: "databricks"},
	{Name: "Netflix", CareerURL: "https://jobs.lever.co/netflix", System: model.SystemLever, SystemID: "netflix"},
	{Name: "Plaid", CareerURL: "https://plaid.com/careers/", System: model.SystemLever, SystemID: "plaid"},
	{Name: "Ramp", CareerURL: "https://ramp.com/careers", System: model.SystemAshby, SystemID: "ramp"},
	{Name: "Linear", CareerURL: "https://linear.app/careers", System: model.SystemAshby, SystemID: "linear"},
	{Name: "Bosch", CareerURL: "https://careers.smartrecruiters.com/BoschGroup", System: model.SystemSmartRecruiters, SystemID: "BoschGroup"},
	{Name: "Visa", CareerURL: "https://careers.smartrecruiters.com/Visa", System: model.SystemSmartRecruiters, SystemID: "Visa"},
}

const curatedConfidence = 0.9

// Seed loads the curated company list into the catalog. Existing rows with
// higher confidence are left untouched by the upsert rules.
func (c *Catalog) Seed(ctx context.Context) (int, error) {
	added := 0
	for _, dc := range curatedCompanies {
		dc.Provenance = model.ProvenanceCurated
		dc.Confidence = curatedConfidence
		if err := c.Add(ctx, dc); err != nil {
			return added, fmt.Errorf("seeding catalog: %w", err)
		}
		added++
	}
	return added, nil
}
