// Package verify re-fetches candidate listing pages to confirm whether they
// are still active, sold or expired. Ambiguous evidence never downgrades a
// listing's status.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/carbitrage/internal/domain"
)

// Config tunes a Verifier.
type Config struct {
	Retry       RetryPolicy
	Concurrency int
	Sources     []SourceRule
	// HostRateLimit caps fetches per host per HostRateWindow when a rate
	// limiter is supplied. Zero disables pacing.
	HostRateLimit  int
	HostRateWindow time.Duration
}

// Verifier checks listing lifecycle state.
type Verifier struct {
	fetcher Fetcher
	limiter domain.RateLimiter
	rules   *rules
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a Verifier. limiter may be nil.
func New(fetcher Fetcher, limiter domain.RateLimiter, cfg Config, logger *slog.Logger) (*Verifier, error) {
	r, err := compileRules(cfg.Sources)
	if err != nil {
		return nil, err
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	return &Verifier{
		fetcher: fetcher,
		limiter: limiter,
		rules:   r,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "verifier")),
		now:     time.Now,
	}, nil
}

type fetchResult struct {
	page Page
	err  error
}

// Verify checks one target. It never returns an error: transport failures
// and ambiguous pages are reported as ambiguous results that keep the
// target's current status.
func (v *Verifier) Verify(ctx context.Context, t domain.VerificationTarget) domain.LifecycleCheckResult {
	current := t.CurrentStatus
	if current == "" {
		current = domain.LifecycleActive
	}
	res := domain.LifecycleCheckResult{ListingID: t.ListingID, Status: current}

	att := Retry(ctx, v.cfg.Retry, func(ctx context.Context) (fetchResult, Outcome, error) {
		if err := v.pace(ctx, t.URL); err != nil {
			return fetchResult{}, OutcomeTerminal, err
		}
		page, err := v.fetcher.Fetch(ctx, t.URL)
		if err != nil {
			if ctx.Err() != nil {
				return fetchResult{err: err}, OutcomeTerminal, err
			}
			return fetchResult{err: err}, OutcomeRetryable, err
		}
		if page.StatusCode == 429 || page.StatusCode >= 500 {
			return fetchResult{page: page}, OutcomeRetryable, nil
		}
		return fetchResult{page: page}, OutcomeSuccess, nil
	})
	res.Attempts = att.Attempts
	res.CheckedAt = v.now().UTC()

	if att.Err != nil {
		res.Ambiguous = true
		res.Reason = "fetch_failed"
		res.Error = att.Err.Error()
		return res
	}

	page := att.Value.page
	res.HTTPStatus = page.StatusCode
	sig, signalled := v.rules.detect(t.Source, page)
	switch code := page.StatusCode; {
	case code == 404 || code == 410:
		res.Status = domain.LifecycleExpired
		res.Reason = fmt.Sprintf("http_%d", code)
	case code < 200 || code >= 300:
		res.Ambiguous = true
		res.Reason = fmt.Sprintf("http_%d", code)
	case !signalled && IsBlockPage(page.Text):
		// A sold or expired phrase stays conclusive on pages that also
		// carry challenge widgets.
		res.Ambiguous = true
		res.Reason = "block_page"
	case v.rules.leftDetail(t.Source, t.URL, page.FinalURL):
		res.Status = domain.LifecycleExpired
		res.Reason = "redirect_out_of_detail"
	case signalled:
		res.Status = sig.Status
		res.Reason = sig.Reason
	default:
		res.Status = domain.LifecycleActive
		res.Reason = "no_signal"
	}
	return res
}

// VerifyBatch verifies targets with bounded concurrency. Targets not
// started before ctx is cancelled are omitted, so the returned slice may be
// shorter than the input. Results keep input order.
func (v *Verifier) VerifyBatch(ctx context.Context, targets []domain.VerificationTarget) []domain.LifecycleCheckResult {
	results := make([]*domain.LifecycleCheckResult, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.cfg.Concurrency)
	for i, t := range targets {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			r := v.Verify(gctx, t)
			if r.Ambiguous {
				v.logger.DebugContext(gctx, "ambiguous lifecycle check",
					slog.Int64("listing_id", t.ListingID),
					slog.String("reason", r.Reason),
					slog.String("error", r.Error),
				)
			}
			results[i] = &r
			return nil
		})
	}
	_ = g.Wait()

	out := make([]domain.LifecycleCheckResult, 0, len(targets))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

func (v *Verifier) pace(ctx context.Context, rawURL string) error {
	if v.limiter == nil || v.cfg.HostRateLimit <= 0 || v.cfg.HostRateWindow <= 0 {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return errors.New("verify: invalid listing url")
	}
	if err := v.limiter.Wait(ctx, "verify:"+u.Host, v.cfg.HostRateLimit, v.cfg.HostRateWindow); err != nil {
		return fmt.Errorf("verify: rate limit wait: %w", err)
	}
	return nil
}
