package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/carbitrage/internal/decision"
	"github.com/alanyoungcy/carbitrage/internal/domain"
	"github.com/alanyoungcy/carbitrage/internal/matching"
	"github.com/alanyoungcy/carbitrage/internal/metrics"
	"github.com/alanyoungcy/carbitrage/internal/scoring"
)

// AlertNotifier delivers alerts to dealer-facing channels.
type AlertNotifier interface {
	Notify(ctx context.Context, ev domain.AlertEvent) error
}

// HuntConfig tunes candidate set rebuilds.
type HuntConfig struct {
	// MaxFingerprints caps the fingerprints matched per rebuild.
	MaxFingerprints int
	// MaxPerFingerprint keeps only the cheapest N matches per fingerprint.
	// Zero keeps every match.
	MaxPerFingerprint int
	// GeoMultipliers scale scores by listing location. Missing locations
	// use 1.0.
	GeoMultipliers map[string]float64
}

// HuntService rebuilds a hunt's candidate set: match, score, classify,
// rank and replace the stored set wholesale.
type HuntService struct {
	hunts      domain.HuntStore
	listings   domain.ListingStore
	fps        domain.FingerprintStore
	bestSales  domain.BestSaleCache
	candidates domain.CandidateStore
	scorer     *scoring.Scorer
	classifier *decision.Classifier
	notifier   AlertNotifier
	bus        domain.SignalBus
	archiver   domain.Archiver
	cfg        HuntConfig
	logger     *slog.Logger
	now        func() time.Time
}

// HuntDeps groups the HuntService collaborators. BestSales, Notifier, Bus
// and Archiver are optional.
type HuntDeps struct {
	Hunts        domain.HuntStore
	Listings     domain.ListingStore
	Fingerprints domain.FingerprintStore
	BestSales    domain.BestSaleCache
	Candidates   domain.CandidateStore
	Scorer       *scoring.Scorer
	Classifier   *decision.Classifier
	Notifier     AlertNotifier
	Bus          domain.SignalBus
	Archiver     domain.Archiver
}

// NewHuntService creates a HuntService.
func NewHuntService(d HuntDeps, cfg HuntConfig, logger *slog.Logger) *HuntService {
	if cfg.MaxFingerprints <= 0 {
		cfg.MaxFingerprints = 20
	}
	geo := make(map[string]float64, len(cfg.GeoMultipliers))
	for k, v := range cfg.GeoMultipliers {
		geo[strings.ToUpper(strings.TrimSpace(k))] = v
	}
	cfg.GeoMultipliers = geo
	return &HuntService{
		hunts:      d.Hunts,
		listings:   d.Listings,
		fps:        d.Fingerprints,
		bestSales:  d.BestSales,
		candidates: d.Candidates,
		scorer:     d.Scorer,
		classifier: d.Classifier,
		notifier:   d.Notifier,
		bus:        d.Bus,
		archiver:   d.Archiver,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "hunt_service")),
		now:        time.Now,
	}
}

// Rebuild recomputes and replaces the candidate set of one hunt. An
// inactive hunt yields an empty summary. Store failures are returned;
// alert, bus and archive failures are logged.
func (s *HuntService) Rebuild(ctx context.Context, huntID string) (domain.RebuildSummary, error) {
	start := time.Now()
	sum, err := s.rebuild(ctx, huntID)
	metrics.RebuildDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RebuildsTotal.WithLabelValues("error").Inc()
		return sum, err
	}
	metrics.RebuildsTotal.WithLabelValues("ok").Inc()
	return sum, nil
}

func (s *HuntService) rebuild(ctx context.Context, huntID string) (domain.RebuildSummary, error) {
	h, err := s.hunts.GetByID(ctx, huntID)
	if err != nil {
		return domain.RebuildSummary{}, fmt.Errorf("hunt_service: load hunt %s: %w", huntID, err)
	}
	sum := domain.RebuildSummary{HuntID: h.ID, CriteriaVersion: h.CriteriaVersion, Counts: decision.Counts(nil)}
	if !h.Active {
		return sum, nil
	}
	if strings.TrimSpace(h.AccountID) == "" || strings.TrimSpace(h.Make) == "" {
		return sum, fmt.Errorf("hunt_service: hunt %s: %w: account and make are required", h.ID, domain.ErrInvalidHunt)
	}

	fps, err := s.fps.TopForAccount(ctx, h.AccountID, s.cfg.MaxFingerprints)
	if err != nil {
		return sum, fmt.Errorf("hunt_service: load fingerprints: %w", err)
	}
	listings, err := s.listings.ListVisible(ctx, domain.ListingQuery{
		Make:    strings.ToUpper(strings.TrimSpace(h.Make)),
		Model:   strings.ToUpper(strings.TrimSpace(h.Model)),
		Sources: h.SourcesEnabled,
	})
	if err != nil {
		return sum, fmt.Errorf("hunt_service: load listings: %w", err)
	}

	cands, err := s.buildCandidates(ctx, h, fps, listings)
	if err != nil {
		return sum, err
	}
	ranked := decision.Rank(cands)

	previous, err := s.candidates.ListByHunt(ctx, h.ID, true)
	if err != nil {
		return sum, fmt.Errorf("hunt_service: load previous set: %w", err)
	}

	version, err := s.hunts.NextCriteriaVersion(ctx, h.ID)
	if err != nil {
		return sum, fmt.Errorf("hunt_service: next criteria version: %w", err)
	}
	builtAt := s.now().UTC()
	for i := range ranked {
		ranked[i].HuntID = h.ID
		ranked[i].CriteriaVersion = version
		ranked[i].CreatedAt = builtAt
	}
	if err := s.candidates.ReplaceSet(ctx, h.ID, version, ranked); err != nil {
		return sum, fmt.Errorf("hunt_service: replace set v%d: %w", version, err)
	}

	sum.CriteriaVersion = version
	sum.Counts = decision.Counts(ranked)
	sum.Events = s.scorer.EventScores(ranked)
	for d, n := range sum.Counts {
		metrics.CandidatesTotal.WithLabelValues(string(d)).Add(float64(n))
	}

	sum.Alerts = s.emitAlerts(ctx, previous, ranked)

	if s.archiver != nil {
		if _, err := s.archiver.ArchiveCandidates(ctx, h.ID, version, ranked); err != nil {
			s.logger.WarnContext(ctx, "archive candidate set failed",
				slog.String("hunt_id", h.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if err := s.hunts.MarkScanned(ctx, h.ID, s.now().UTC()); err != nil {
		return sum, fmt.Errorf("hunt_service: mark scanned: %w", err)
	}

	s.logger.InfoContext(ctx, "hunt rebuilt",
		slog.String("hunt_id", h.ID),
		slog.Int64("criteria_version", version),
		slog.Int("listings", len(listings)),
		slog.Int("fingerprints", len(fps)),
		slog.Int("buy", sum.Counts[domain.DecisionBuy]),
		slog.Int("watch", sum.Counts[domain.DecisionWatch]),
		slog.Int("unverified", sum.Counts[domain.DecisionUnverified]),
		slog.Int("ignore", sum.Counts[domain.DecisionIgnore]),
		slog.Int("alerts", sum.Alerts),
	)
	return sum, nil
}

// buildCandidates matches, truncates, scores and classifies. Listings that
// fail the hunt criteria or every fingerprint become IGNORE candidates.
func (s *HuntService) buildCandidates(ctx context.Context, h domain.Hunt, fps []domain.WinnerFingerprint, listings []domain.ListingRecord) ([]domain.MatchCandidate, error) {
	var (
		out     []domain.MatchCandidate
		matched []*matching.Result
	)
	for _, l := range listings {
		rej := matching.HuntFilter(h, l)
		var res *matching.Result
		if rej == matching.RejectNone {
			res, rej = matching.Best(l, fps)
		}
		if res == nil {
			cand := domain.MatchCandidate{Listing: l, Confidence: scoring.Confidence(0)}
			r := s.classifier.Classify(decision.Input{Candidate: cand, Rejection: rej})
			cand.Decision, cand.Reasons = r.Decision, r.Reasons
			out = append(out, cand)
			continue
		}
		matched = append(matched, res)
	}

	bests := map[string]*domain.BestSale{}
	for _, res := range matching.TruncatePerFingerprint(matched, s.cfg.MaxPerFingerprint) {
		fp := res.Fingerprint
		key := fp.Make + "\x00" + fp.Model
		best, ok := bests[key]
		if !ok {
			var err error
			best, err = s.bestSale(ctx, h.AccountID, fp.Make, fp.Model)
			if err != nil {
				return nil, err
			}
			bests[key] = best
		}
		out = append(out, s.score(res, best))
	}
	return out, nil
}

// score turns one match into a classified candidate.
func (s *HuntService) score(res *matching.Result, best *domain.BestSale) domain.MatchCandidate {
	fp := res.Fingerprint
	l := res.Listing

	exit, anchor := scoring.ProvenExit(best, fp)
	gap, pct := scoring.Gap(exit, l.AskingPrice)

	winRate := 0.5
	if fp.WinRate != nil {
		winRate = *fp.WinRate
	}
	dna := s.scorer.Score(scoring.Inputs{
		MedianGP:          fp.ProfitFigure(),
		WinRate:           winRate,
		MedianDaysToExit:  fp.MedianDaysToClear,
		SampleSize:        fp.TimesSold,
		VariantConfidence: res.VariantConfidence,
		GeoMultiplier:     s.geo(l.Location),
	})
	price := s.scorer.PriceScore(pct)

	cand := domain.MatchCandidate{
		Listing:              l,
		FingerprintRank:      fp.Rank,
		KmScore:              res.KmScore,
		DNAScore:             dna,
		PriceScore:           price,
		FinalScore:           s.scorer.Final(dna, price, res.KmScore, fp.TimesSold),
		Confidence:           scoring.Confidence(fp.TimesSold),
		SampleSize:           fp.TimesSold,
		ProvenExitValue:      exit,
		ExitAnchor:           anchor,
		GapDollars:           gap,
		GapPct:               pct,
		LastSaleGap:          res.EstimatedProfit,
		MedianFingerprintGap: diff(fp.MedianSalePrice, l.AskingPrice),
	}
	r := s.classifier.Classify(decision.Input{Candidate: cand, MedianDaysToClear: fp.MedianDaysToClear})
	cand.Decision, cand.Reasons = r.Decision, r.Reasons
	return cand
}

func (s *HuntService) geo(location string) float64 {
	if m, ok := s.cfg.GeoMultipliers[strings.ToUpper(strings.TrimSpace(location))]; ok {
		return m
	}
	return 1.0
}

// bestSale reads the best historical sale through the cache. A cache
// failure falls back to the store; only store failures are returned.
func (s *HuntService) bestSale(ctx context.Context, accountID, vehicleMake, model string) (*domain.BestSale, error) {
	if s.bestSales != nil {
		b, hit, err := s.bestSales.Get(ctx, accountID, vehicleMake, model)
		switch {
		case hit && errors.Is(err, domain.ErrNotFound):
			return nil, nil
		case hit && err == nil:
			return &b, nil
		case err != nil:
			s.logger.WarnContext(ctx, "best sale cache read failed", slog.String("error", err.Error()))
		}
	}

	b, err := s.fps.BestHistoricalSale(ctx, accountID, vehicleMake, model)
	if errors.Is(err, domain.ErrNotFound) {
		if s.bestSales != nil {
			_ = s.bestSales.SetMiss(ctx, accountID, vehicleMake, model)
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("hunt_service: best sale %s %s: %w", vehicleMake, model, err)
	}
	if s.bestSales != nil {
		if err := s.bestSales.Set(ctx, accountID, b); err != nil {
			s.logger.WarnContext(ctx, "best sale cache write failed", slog.String("error", err.Error()))
		}
	}
	return &b, nil
}

// emitAlerts sends an alert for every candidate whose decision moved into
// BUY or WATCH since the previous set, except BUY to WATCH downgrades. It
// returns the number emitted.
func (s *HuntService) emitAlerts(ctx context.Context, previous, current []domain.MatchCandidate) int {
	before := make(map[int64]domain.Decision, len(previous))
	for _, c := range previous {
		before[c.Listing.ID] = c.Decision
	}

	emitted := 0
	for _, c := range current {
		prev := before[c.Listing.ID]
		if !c.Decision.Actionable() || prev == c.Decision {
			continue
		}
		// A downgrade from BUY is not news.
		if prev == domain.DecisionBuy && c.Decision == domain.DecisionWatch {
			continue
		}
		ev := domain.AlertEvent{
			ID:               uuid.NewString(),
			HuntID:           c.HuntID,
			ListingID:        c.Listing.ID,
			Decision:         c.Decision,
			PreviousDecision: prev,
			VehicleSummary:   c.Listing.Identity.Summary(),
			Price:            c.Listing.AskingPrice,
			GapDollars:       c.GapDollars,
			GapPct:           c.GapPct,
			Confidence:       c.Confidence,
			URL:              c.Listing.URL,
			Reasons:          c.Reasons,
			OccurredAt:       s.now().UTC(),
		}
		emitted++
		metrics.AlertsTotal.WithLabelValues(string(c.Decision)).Inc()

		if s.notifier != nil {
			if err := s.notifier.Notify(ctx, ev); err != nil {
				s.logger.WarnContext(ctx, "alert delivery failed",
					slog.Int64("listing_id", ev.ListingID),
					slog.String("error", err.Error()),
				)
			}
		}
		if s.bus != nil {
			payload, err := json.Marshal(ev)
			if err == nil {
				err = s.bus.Publish(ctx, domain.ChannelAlerts, payload)
			}
			if err != nil {
				s.logger.WarnContext(ctx, "alert publish failed",
					slog.Int64("listing_id", ev.ListingID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	return emitted
}

// RebuildDue rebuilds every active hunt due at now. A hunt that fails for
// a domain reason (missing, invalid, superseded) is logged and skipped;
// any other failure stops the pass and is returned with the summaries
// produced so far.
func (s *HuntService) RebuildDue(ctx context.Context, now time.Time) ([]domain.RebuildSummary, error) {
	hunts, err := s.hunts.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("hunt_service: list active hunts: %w", err)
	}

	var out []domain.RebuildSummary
	for _, h := range hunts {
		if !h.Due(now) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}
		sum, err := s.Rebuild(ctx, h.ID)
		if err != nil {
			if isDomainError(err) {
				s.logger.WarnContext(ctx, "hunt rebuild skipped",
					slog.String("hunt_id", h.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			return out, err
		}
		out = append(out, sum)
	}
	return out, nil
}

// Candidates returns the stored ranked set of a hunt.
func (s *HuntService) Candidates(ctx context.Context, huntID string, includeIgnored bool) ([]domain.MatchCandidate, error) {
	cands, err := s.candidates.ListByHunt(ctx, huntID, includeIgnored)
	if err != nil {
		return nil, fmt.Errorf("hunt_service: list candidates: %w", err)
	}
	return cands, nil
}

func isDomainError(err error) bool {
	return errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrInvalidHunt) ||
		errors.Is(err, domain.ErrStaleVersion)
}

func diff(exit, asking *float64) *float64 {
	if exit == nil || asking == nil {
		return nil
	}
	v := *exit - *asking
	return &v
}
