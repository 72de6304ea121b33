// Package invoker wraps the task-execution interface with retry and model
// downgrade so that every worker invocation yields some output.
package invoker

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/nidhogg/agency-studio/internal/provider"
	"go.uber.org/zap"
)

// FallbackMarker tags canned output produced after all attempts failed.
const FallbackMarker = "[placeholder]"

// RetryPolicy separates how many attempts are made from what the final
// attempt falls back to.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	// Downgrade serves the last attempt of text tasks.
	Downgrade provider.ModelConfig
	// ImageDowngrade serves the last attempt of image tasks.
	ImageDowngrade provider.ModelConfig
	// Alternates and ImageAlternates are tried in order when the downgrade
	// target is the model the task already resolved to.
	Alternates      []provider.ModelConfig
	ImageAlternates []provider.ModelConfig
}

// DefaultPolicy is three attempts, two seconds apart, with the last one on
// the cheapest model.
func DefaultPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		Backoff:        2 * time.Second,
		Downgrade:      provider.ModelConfig{Provider: "openai", Model: "gpt-4o-mini", CreditMultiplier: 0.5},
		ImageDowngrade: provider.ModelConfig{Provider: "openai", Model: "dall-e-2", CreditMultiplier: 2},
		Alternates: []provider.ModelConfig{
			{Provider: "anthropic", Model: "claude-3-5-haiku-20241022", CreditMultiplier: 0.5},
		},
		ImageAlternates: []provider.ModelConfig{
			{Provider: "openai", Model: "dall-e-3", CreditMultiplier: 4},
		},
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.Backoff < 0 {
		p.Backoff = 0
	}
	if p.Downgrade.IsZero() {
		p.Downgrade = def.Downgrade
	}
	if p.ImageDowngrade.IsZero() {
		p.ImageDowngrade = def.ImageDowngrade
	}
	if p.Alternates == nil {
		p.Alternates = def.Alternates
	}
	if p.ImageAlternates == nil {
		p.ImageAlternates = def.ImageAlternates
	}
	return p
}

// target returns the model for a 1-based attempt. The last attempt of a
// multi-attempt policy is downgraded to the first candidate whose provider
// and model differ from the resolved one.
func (p RetryPolicy) target(req *provider.TaskRequest, attempt int) (provider.ModelConfig, bool) {
	if p.MaxAttempts < 2 || attempt < p.MaxAttempts {
		return req.Model, false
	}
	candidates := append([]provider.ModelConfig{p.Downgrade}, p.Alternates...)
	if req.Kind == provider.TaskImage {
		candidates = append([]provider.ModelConfig{p.ImageDowngrade}, p.ImageAlternates...)
	}
	for _, c := range candidates {
		if !c.IsZero() && !sameModel(c, req.Model) {
			return c, true
		}
	}
	return candidates[0], true
}

// sameModel compares provider and model, ignoring the credit multiplier.
func sameModel(a, b provider.ModelConfig) bool {
	return a.Provider == b.Provider && a.Model == b.Model
}

// Result is the outcome of one invocation. Fallback is true when Output is
// the canned placeholder.
type Result struct {
	Output     string               `json:"output"`
	Usage      provider.Usage       `json:"usage"`
	Model      provider.ModelConfig `json:"model"`
	Attempts   int                  `json:"attempts"`
	Downgraded bool                 `json:"downgraded"`
	Fallback   bool                 `json:"fallback"`
	Err        error                `json:"-"`
}

// Invoker executes tasks under a RetryPolicy.
type Invoker struct {
	exec   provider.TaskExecutor
	policy RetryPolicy
	logger *zap.Logger
	sleep  func(context.Context, time.Duration) error
}

// New creates an Invoker.
func New(exec provider.TaskExecutor, policy RetryPolicy, logger *zap.Logger) *Invoker {
	return &Invoker{
		exec:   exec,
		policy: policy.withDefaults(),
		logger: logger,
		sleep:  sleepContext,
	}
}

// Policy returns the effective retry policy.
func (inv *Invoker) Policy() RetryPolicy {
	return inv.policy
}

// Invoke runs req until it succeeds or the policy is exhausted. It never
// returns an error; exhaustion and cancellation produce a fallback Result
// whose Err holds the last failure.
func (inv *Invoker) Invoke(ctx context.Context, req *provider.TaskRequest) Result {
	var lastErr error
	attempts := 0

	for attempt := 1; attempt <= inv.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := inv.sleep(ctx, inv.policy.Backoff); err != nil {
				lastErr = err
				break
			}
		}

		model, downgraded := inv.policy.target(req, attempt)
		call := *req
		call.Model = model
		attempts = attempt

		resp, err := inv.exec.Execute(ctx, &call)
		if err == nil {
			return Result{
				Output:     resp.Output,
				Usage:      resp.Usage,
				Model:      model,
				Attempts:   attempt,
				Downgraded: downgraded,
			}
		}
		lastErr = err
		inv.logger.Warn("task attempt failed",
			zap.Int("attempt", attempt),
			zap.String("provider", model.Provider),
			zap.String("model", model.Model),
			zap.Bool("downgraded", downgraded),
			zap.Error(err))

		if ctx.Err() != nil {
			lastErr = errors.Join(ctx.Err(), err)
			break
		}
	}

	inv.logger.Error("task exhausted retries, using fallback",
		zap.Int("attempts", attempts), zap.Error(lastErr))
	return Result{
		Output:   Fallback(req.Kind, lastErr),
		Attempts: attempts,
		Fallback: true,
		Err:      lastErr,
	}
}

// Fallback returns the canned placeholder output for a task kind.
func Fallback(kind provider.TaskKind, cause error) string {
	var b strings.Builder
	b.WriteString(FallbackMarker)
	if kind == provider.TaskImage {
		b.WriteString(" Image generation is temporarily unavailable.")
	} else {
		b.WriteString(" This section could not be generated. Please retry the run or edit it manually.")
	}
	if cause != nil {
		b.WriteString(" (")
		b.WriteString(cause.Error())
		b.WriteString(")")
	}
	return b.String()
}

// IsFallback reports whether output carries the fallback marker.
func IsFallback(output string) bool {
	return strings.HasPrefix(output, FallbackMarker)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
