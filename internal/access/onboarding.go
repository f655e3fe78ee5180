package access

import (
	"context"
	"log/slog"
)

const OnboardingKey = "onboarding_completed"

// Onboarding persists whether the intro flow has been finished.
type Onboarding struct {
	kv     KeyValue
	logger *slog.Logger
}

func NewOnboarding(kv KeyValue, logger *slog.Logger) *Onboarding {
	if logger == nil {
		logger = slog.Default()
	}
	return &Onboarding{kv: kv, logger: logger}
}

// Completed reports false when the flag cannot be read.
func (o *Onboarding) Completed(ctx context.Context) bool {
	v, ok, err := o.kv.Get(ctx, OnboardingKey)
	if err != nil {
		o.logger.Warn("read onboarding flag failed", "error", err)
		return false
	}
	return ok && v == "true"
}

func (o *Onboarding) Complete(ctx context.Context) error {
	return o.kv.Set(ctx, OnboardingKey, "true")
}

func (o *Onboarding) Reset(ctx context.Context) error {
	return o.kv.Remove(ctx, OnboardingKey)
}
