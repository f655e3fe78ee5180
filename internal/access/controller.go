package access

import (
	"context"
	"time"
)

// Gate is the combined lock decision.
type Gate struct {
	IsLocked                bool `json:"is_locked"`
	IsInComplimentaryAccess bool `json:"is_in_complimentary_access"`
	HasFullAccess           bool `json:"has_full_access"`
}

// Evaluate unlocks content when any source grants access. Complimentary
// access is grace without any billing entitlement.
func Evaluate(isPro, isTrialing, inGrace bool) Gate {
	full := isPro || isTrialing || inGrace
	return Gate{
		IsLocked:                !full,
		IsInComplimentaryAccess: !isPro && !isTrialing && inGrace,
		HasFullAccess:           full,
	}
}

// State is everything a client needs to render the paywall and banner.
type State struct {
	Gate

	IsPro           bool       `json:"is_pro"`
	IsTrialing      bool       `json:"is_trialing"`
	IsInGracePeriod bool       `json:"is_in_grace_period"`
	GraceDaysLeft   int        `json:"grace_days_left"`
	GraceEndsAt     *time.Time `json:"grace_ends_at"`
	TrialEndsAt     *time.Time `json:"trial_ends_at"`
	AnnualPrice     string     `json:"annual_price"`
	MonthlyPrice    string     `json:"monthly_price"`
	Error           string     `json:"error,omitempty"`
}

// Controller combines the grace period with subscription state.
type Controller struct {
	grace *GracePeriod
	sub   *Subscription
}

func NewController(g *GracePeriod, s *Subscription) *Controller {
	return &Controller{grace: g, sub: s}
}

func (c *Controller) Grace() *GracePeriod         { return c.grace }
func (c *Controller) Subscription() *Subscription { return c.sub }

// State evaluates the gate from the cached subscription state and a fresh
// grace check.
func (c *Controller) State(ctx context.Context, now time.Time) State {
	return compose(c.sub.State(), c.grace.Check(ctx, now))
}

func compose(sub SubscriptionState, grace GraceStatus) State {
	return State{
		Gate:            Evaluate(sub.IsPro, sub.IsTrialing, grace.InGrace),
		IsPro:           sub.IsPro,
		IsTrialing:      sub.IsTrialing,
		IsInGracePeriod: grace.InGrace,
		GraceDaysLeft:   grace.DaysLeft,
		GraceEndsAt:     grace.EndsAt,
		TrialEndsAt:     sub.TrialEndsAt,
		AnnualPrice:     sub.AnnualPrice,
		MonthlyPrice:    sub.MonthlyPrice,
		Error:           sub.Error,
	}
}

// Outcome names the source of access: "trial", "pro", "grace" or "locked".
func (s State) Outcome() string {
	switch {
	case s.IsTrialing:
		return "trial"
	case s.IsPro:
		return "pro"
	case s.IsInGracePeriod:
		return "grace"
	default:
		return "locked"
	}
}
