// Package billing defines the entitlement provider the access controller
// consults, and a deterministic fixture implementation used when no real
// payment backend is configured.
package billing

import (
	"context"
	"errors"
	"time"
)

// EntitlementID names the entitlement that unlocks the app.
const EntitlementID = "pro"

// ErrCancelled is returned by Purchase when the user abandons the flow.
// It is not a failure.
var ErrCancelled = errors.New("purchase cancelled")

type Plan string

const (
	PlanAnnual  Plan = "annual"
	PlanMonthly Plan = "monthly"
)

// ParsePlan returns the plan named s and whether it is known.
func ParsePlan(s string) (Plan, bool) {
	switch Plan(s) {
	case PlanAnnual, PlanMonthly:
		return Plan(s), true
	}
	return "", false
}

// Title is the plan name as shown to users.
func (p Plan) Title() string {
	switch p {
	case PlanAnnual:
		return "Annual"
	case PlanMonthly:
		return "Monthly"
	}
	return string(p)
}

type PeriodType string

const (
	PeriodNormal PeriodType = "normal"
	PeriodTrial  PeriodType = "trial"
)

// Entitlement is an active paid or trial benefit.
type Entitlement struct {
	ID         string     `json:"id"`
	Active     bool       `json:"active"`
	PeriodType PeriodType `json:"period_type"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// IsTrial reports whether e is an active trial.
func (e *Entitlement) IsTrial() bool {
	return e != nil && e.Active && e.PeriodType == PeriodTrial
}

// TrialEndsAt returns the expiry of a trial entitlement, or nil.
func (e *Entitlement) TrialEndsAt() *time.Time {
	if !e.IsTrial() {
		return nil
	}
	return e.ExpiresAt
}

// PlanInfo is one purchasable plan.
type PlanInfo struct {
	ID          string `json:"id"`
	Plan        Plan   `json:"plan"`
	PriceString string `json:"price"`
}

// PriceDescription returns the price with its billing period, e.g. "$12.99/month".
func (p PlanInfo) PriceDescription() string {
	switch p.Plan {
	case PlanAnnual:
		return p.PriceString + "/year"
	case PlanMonthly:
		return p.PriceString + "/month"
	}
	return p.PriceString
}

// Offering is the set of plans currently for sale. Either may be nil.
type Offering struct {
	Annual  *PlanInfo `json:"annual"`
	Monthly *PlanInfo `json:"monthly"`
}

// Get returns the offered plan p, or nil.
func (o Offering) Get(p Plan) *PlanInfo {
	switch p {
	case PlanAnnual:
		return o.Annual
	case PlanMonthly:
		return o.Monthly
	}
	return nil
}

type PurchaseResult struct {
	Succeeded   bool         `json:"succeeded"`
	Entitlement *Entitlement `json:"entitlement,omitempty"`
}

// Provider is a billing backend.
type Provider interface {
	// Entitlement returns the active entitlement, or nil when there is none.
	Entitlement(ctx context.Context) (*Entitlement, error)
	Offering(ctx context.Context) (Offering, error)
	// Purchase returns ErrCancelled if the user backs out.
	Purchase(ctx context.Context, plan Plan) (PurchaseResult, error)
	Restore(ctx context.Context) (PurchaseResult, error)
}
