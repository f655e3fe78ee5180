package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/recoverypulse/internal/billing"
)

const (
	DefaultAnnualPrice  = "$79.99"
	DefaultMonthlyPrice = "$12.99"

	msgRefreshFailed    = "Failed to load subscription status"
	msgPurchaseFailed   = "Purchase failed"
	msgRestoreFailed    = "Restore failed"
	msgNothingToRestore = "No purchases to restore"
)

// SubscriptionState is the last known billing picture.
type SubscriptionState struct {
	IsPro        bool             `json:"is_pro"`
	IsTrialing   bool             `json:"is_trialing"`
	TrialEndsAt  *time.Time       `json:"trial_ends_at"`
	Offering     billing.Offering `json:"offering"`
	AnnualPrice  string           `json:"annual_price"`
	MonthlyPrice string           `json:"monthly_price"`
	Error        string           `json:"error,omitempty"`
}

// Subscription caches entitlement state from a billing provider. Provider
// failures are kept as a user-facing message; the previous values stay in
// effect.
type Subscription struct {
	provider billing.Provider
	logger   *slog.Logger

	mu    sync.RWMutex
	state SubscriptionState
}

func NewSubscription(p billing.Provider, logger *slog.Logger) *Subscription {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscription{
		provider: p,
		logger:   logger,
		state: SubscriptionState{
			AnnualPrice:  DefaultAnnualPrice,
			MonthlyPrice: DefaultMonthlyPrice,
		},
	}
}

// State returns a copy of the cached state.
func (s *Subscription) State() SubscriptionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Refresh fetches the entitlement and the offered plans concurrently.
func (s *Subscription) Refresh(ctx context.Context) SubscriptionState {
	var (
		ent *billing.Entitlement
		off billing.Offering
	)

	var g errgroup.Group
	g.Go(func() error {
		e, err := s.provider.Entitlement(ctx)
		if err != nil {
			return fmt.Errorf("fetch entitlement: %w", err)
		}
		ent = e
		return nil
	})
	g.Go(func() error {
		o, err := s.provider.Offering(ctx)
		if err != nil {
			s.logger.Warn("fetch offering failed, using default prices", "error", err)
			return nil
		}
		off = o
		return nil
	})
	err := g.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Offering = off
	s.state.AnnualPrice = priceOr(off.Annual, DefaultAnnualPrice)
	s.state.MonthlyPrice = priceOr(off.Monthly, DefaultMonthlyPrice)

	if err != nil {
		s.logger.Error("subscription refresh failed", "error", err)
		s.state.Error = msgRefreshFailed
		return s.state
	}

	s.state.IsPro = ent != nil && ent.Active
	s.state.IsTrialing = ent.IsTrial()
	s.state.TrialEndsAt = ent.TrialEndsAt()
	s.state.Error = ""
	return s.state
}

// Purchase buys plan. It reports false without a message when the user
// cancels.
func (s *Subscription) Purchase(ctx context.Context, plan billing.Plan) bool {
	s.mu.Lock()
	if s.state.Offering.Get(plan) == nil {
		s.state.Error = plan.Title() + " plan not available"
		s.mu.Unlock()
		return false
	}
	s.state.Error = ""
	s.mu.Unlock()

	res, err := s.provider.Purchase(ctx, plan)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case errors.Is(err, billing.ErrCancelled):
		s.logger.Info("purchase cancelled", "plan", plan)
		return false
	case err != nil:
		s.logger.Error("purchase failed", "plan", plan, "error", err)
		s.state.Error = msgPurchaseFailed
		return false
	case !res.Succeeded:
		return false
	}

	s.state.IsPro = true
	if plan == billing.PlanAnnual {
		s.state.IsTrialing = res.Entitlement.IsTrial()
		s.state.TrialEndsAt = res.Entitlement.TrialEndsAt()
	} else {
		// Monthly plans carry no trial.
		s.state.IsTrialing = false
		s.state.TrialEndsAt = nil
	}
	s.logger.Info("purchase completed", "plan", plan, "trialing", s.state.IsTrialing)
	return true
}

// Restore re-applies earlier purchases.
func (s *Subscription) Restore(ctx context.Context) bool {
	s.mu.Lock()
	s.state.Error = ""
	s.mu.Unlock()

	res, err := s.provider.Restore(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.logger.Error("restore failed", "error", err)
		s.state.Error = msgRestoreFailed
		return false
	}
	if !res.Succeeded {
		s.state.Error = msgNothingToRestore
		return false
	}

	s.state.IsPro = true
	s.state.IsTrialing = res.Entitlement.IsTrial()
	s.state.TrialEndsAt = res.Entitlement.TrialEndsAt()
	s.logger.Info("purchases restored", "trialing", s.state.IsTrialing)
	return true
}

func priceOr(p *billing.PlanInfo, fallback string) string {
	if p == nil || p.PriceString == "" {
		return fallback
	}
	return p.PriceString
}
