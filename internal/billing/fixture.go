package billing

import "context"

const (
	FixtureAnnualPrice  = "$79.99"
	FixtureMonthlyPrice = "$12.99"

	fixtureAnnualID  = "recoverypulse.annual"
	fixtureMonthlyID = "recoverypulse.monthly"
)

// Fixture is a Provider with fixed data for development and tests. It never
// reports an active entitlement; a purchase succeeds with a trial entitlement
// that is not remembered, and restore finds nothing.
type Fixture struct{}

func NewFixture() *Fixture {
	return &Fixture{}
}

func (f *Fixture) Entitlement(ctx context.Context) (*Entitlement, error) {
	return nil, ctx.Err()
}

func (f *Fixture) Offering(ctx context.Context) (Offering, error) {
	if err := ctx.Err(); err != nil {
		return Offering{}, err
	}
	return Offering{
		Annual:  &PlanInfo{ID: fixtureAnnualID, Plan: PlanAnnual, PriceString: FixtureAnnualPrice},
		Monthly: &PlanInfo{ID: fixtureMonthlyID, Plan: PlanMonthly, PriceString: FixtureMonthlyPrice},
	}, nil
}

func (f *Fixture) Purchase(ctx context.Context, plan Plan) (PurchaseResult, error) {
	if err := ctx.Err(); err != nil {
		return PurchaseResult{}, err
	}
	return PurchaseResult{
		Succeeded:   true,
		Entitlement: &Entitlement{ID: EntitlementID, Active: true, PeriodType: PeriodTrial},
	}, nil
}

func (f *Fixture) Restore(ctx context.Context) (PurchaseResult, error) {
	return PurchaseResult{}, ctx.Err()
}
