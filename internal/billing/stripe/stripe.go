// Package stripe implements billing.Provider on top of Stripe subscriptions
// for a single, pre-provisioned customer.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/price"
	"github.com/stripe/stripe-go/v82/subscription"

	"github.com/dukerupert/recoverypulse/internal/billing"
)

type Config struct {
	SecretKey      string
	CustomerID     string
	AnnualPriceID  string
	MonthlyPriceID string
	// TrialDays is granted on annual subscriptions only.
	TrialDays int
}

type Provider struct {
	cfg Config
}

var _ billing.Provider = (*Provider)(nil)

func NewProvider(cfg Config) *Provider {
	stripe.Key = cfg.SecretKey
	return &Provider{cfg: cfg}
}

// Entitlement returns the customer's first active or trialing subscription
// as an entitlement, or nil.
func (p *Provider) Entitlement(ctx context.Context) (*billing.Entitlement, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(p.cfg.CustomerID),
		Status:   stripe.String("all"),
	}
	params.Context = ctx

	it := subscription.List(params)
	for it.Next() {
		if ent := entitlementFor(it.Subscription()); ent != nil {
			return ent, nil
		}
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("list stripe subscriptions: %w", err)
	}
	return nil, nil
}

// Offering looks up the configured prices. A plan with no price id
// configured is left out.
func (p *Provider) Offering(ctx context.Context) (billing.Offering, error) {
	var off billing.Offering
	if p.cfg.AnnualPriceID != "" {
		info, err := p.planInfo(ctx, billing.PlanAnnual, p.cfg.AnnualPriceID)
		if err != nil {
			return off, err
		}
		off.Annual = info
	}
	if p.cfg.MonthlyPriceID != "" {
		info, err := p.planInfo(ctx, billing.PlanMonthly, p.cfg.MonthlyPriceID)
		if err != nil {
			return off, err
		}
		off.Monthly = info
	}
	return off, nil
}

func (p *Provider) planInfo(ctx context.Context, plan billing.Plan, priceID string) (*billing.PlanInfo, error) {
	params := &stripe.PriceParams{}
	params.Context = ctx

	pr, err := price.Get(priceID, params)
	if err != nil {
		return nil, fmt.Errorf("get stripe price %s: %w", priceID, err)
	}
	if !pr.Active {
		return nil, nil
	}
	return &billing.PlanInfo{
		ID:          pr.ID,
		Plan:        plan,
		PriceString: FormatAmount(pr.UnitAmount, string(pr.Currency)),
	}, nil
}

// Purchase subscribes the customer to plan. A subscription left incomplete
// means the customer did not confirm payment and is reported as cancelled.
func (p *Provider) Purchase(ctx context.Context, plan billing.Plan) (billing.PurchaseResult, error) {
	priceID := p.priceIDForPlan(plan)
	if priceID == "" {
		return billing.PurchaseResult{}, fmt.Errorf("no stripe price configured for %s plan", plan)
	}

	params := &stripe.SubscriptionParams{
		Customer: stripe.String(p.cfg.CustomerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(priceID)},
		},
		PaymentBehavior: stripe.String("default_incomplete"),
	}
	if plan == billing.PlanAnnual && p.cfg.TrialDays > 0 {
		params.TrialPeriodDays = stripe.Int64(int64(p.cfg.TrialDays))
	}
	params.Context = ctx

	sub, err := subscription.New(params)
	if err != nil {
		var serr *stripe.Error
		if errors.As(err, &serr) && serr.Code == "payment_intent_authentication_failure" {
			return billing.PurchaseResult{}, billing.ErrCancelled
		}
		return billing.PurchaseResult{}, fmt.Errorf("create stripe subscription: %w", err)
	}

	switch sub.Status {
	case stripe.SubscriptionStatusIncomplete, stripe.SubscriptionStatusIncompleteExpired:
		return billing.PurchaseResult{}, billing.ErrCancelled
	}

	ent := entitlementFor(sub)
	return billing.PurchaseResult{Succeeded: ent != nil, Entitlement: ent}, nil
}

// Restore re-reads the customer's subscriptions.
func (p *Provider) Restore(ctx context.Context) (billing.PurchaseResult, error) {
	ent, err := p.Entitlement(ctx)
	if err != nil {
		return billing.PurchaseResult{}, err
	}
	return billing.PurchaseResult{Succeeded: ent != nil, Entitlement: ent}, nil
}

func (p *Provider) priceIDForPlan(plan billing.Plan) string {
	switch plan {
	case billing.PlanAnnual:
		return p.cfg.AnnualPriceID
	case billing.PlanMonthly:
		return p.cfg.MonthlyPriceID
	}
	return ""
}

func entitlementFor(sub *stripe.Subscription) *billing.Entitlement {
	if sub == nil {
		return nil
	}
	switch sub.Status {
	case stripe.SubscriptionStatusTrialing:
		ent := &billing.Entitlement{ID: billing.EntitlementID, Active: true, PeriodType: billing.PeriodTrial}
		if sub.TrialEnd > 0 {
			end := time.Unix(sub.TrialEnd, 0).UTC()
			ent.ExpiresAt = &end
		}
		return ent
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusPastDue:
		return &billing.Entitlement{ID: billing.EntitlementID, Active: true, PeriodType: billing.PeriodNormal}
	}
	return nil
}

var currencySymbols = map[string]string{
	"usd": "$",
	"eur": "€",
	"gbp": "£",
}

// FormatAmount renders a minor-unit amount, e.g. 7999 usd as "$79.99".
func FormatAmount(minor int64, currency string) string {
	amount := fmt.Sprintf("%d.%02d", minor/100, minor%100)
	if sym, ok := currencySymbols[strings.ToLower(currency)]; ok {
		return sym + amount
	}
	return amount + " " + strings.ToUpper(currency)
}
