package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/alanyoungcy/carbitrage/internal/domain"
)

// multipartThreshold is the payload size above which uploads go through the
// multipart manager.
const multipartThreshold = 16 * 1024 * 1024

// Archiver implements domain.Archiver. Objects are laid out as:
//
//	crawl-runs/<source>/<YYYY-MM-DD>/<run>.json
//	candidates/<hunt>/<version>.jsonl
type Archiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	audit  domain.AuditStore
}

// NewArchiver creates an Archiver. reader and audit may be nil.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, audit domain.AuditStore) *Archiver {
	return &Archiver{writer: writer, reader: reader, audit: audit}
}

// BatchPath returns the object key of a crawl batch.
func BatchPath(b domain.CrawlBatch) string {
	day := b.FinishedAt
	if day.IsZero() {
		day = b.StartedAt
	}
	return fmt.Sprintf("crawl-runs/%s/%s/%s.json",
		url.PathEscape(b.Source), day.UTC().Format("2006-01-02"), url.PathEscape(b.RunID))
}

// CandidatesPath returns the object key of a candidate set snapshot.
func CandidatesPath(huntID string, version int64) string {
	return fmt.Sprintf("candidates/%s/%06d.jsonl", url.PathEscape(huntID), version)
}

// ArchiveBatch stores the raw batch as delivered by the crawler.
func (a *Archiver) ArchiveBatch(ctx context.Context, batch domain.CrawlBatch) (string, error) {
	data, err := json.Marshal(batch)
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal batch %s: %w", batch.RunID, err)
	}
	path := BatchPath(batch)
	if err := a.put(ctx, path, data, "application/json"); err != nil {
		return "", err
	}
	a.log(ctx, "archive.crawl_run", map[string]any{
		"path":    path,
		"run_id":  batch.RunID,
		"source":  batch.Source,
		"records": len(batch.Records),
	})
	return path, nil
}

// ArchiveCandidates stores one candidate set version as JSONL.
func (a *Archiver) ArchiveCandidates(ctx context.Context, huntID string, version int64, set []domain.MatchCandidate) (string, error) {
	rows := make([]candidateRow, len(set))
	for i, c := range set {
		rows[i] = toCandidateRow(c)
	}
	data, err := marshalJSONL(rows)
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal candidates %s: %w", huntID, err)
	}
	path := CandidatesPath(huntID, version)
	if err := a.put(ctx, path, data, "application/x-ndjson"); err != nil {
		return "", err
	}
	a.log(ctx, "archive.candidates", map[string]any{
		"path":     path,
		"hunt_id":  huntID,
		"version":  version,
		"count":    len(set),
		"archived": time.Now().UTC().Format(time.RFC3339),
	})
	return path, nil
}

// LoadBatch reads an archived batch back, for replaying a run.
func (a *Archiver) LoadBatch(ctx context.Context, path string) (domain.CrawlBatch, error) {
	if a.reader == nil {
		return domain.CrawlBatch{}, fmt.Errorf("s3blob: load batch %s: no reader configured", path)
	}
	rc, err := a.reader.Get(ctx, path)
	if err != nil {
		return domain.CrawlBatch{}, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return domain.CrawlBatch{}, fmt.Errorf("s3blob: read batch %s: %w", path, err)
	}
	var b domain.CrawlBatch
	if err := json.Unmarshal(data, &b); err != nil {
		return domain.CrawlBatch{}, fmt.Errorf("s3blob: decode batch %s: %w", path, err)
	}
	for i := range b.Records {
		if b.Records[i].Source == "" {
			b.Records[i].Source = b.Source
		}
	}
	return b, nil
}

// ListBatches returns the archived batch paths under prefix. Paths embed the
// crawl day, so sorting them replays a source in day order.
func (a *Archiver) ListBatches(ctx context.Context, prefix string) ([]string, error) {
	if a.reader == nil {
		return nil, fmt.Errorf("s3blob: list batches %s: no reader configured", prefix)
	}
	infos, err := a.reader.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(infos))
	for _, info := range infos {
		if strings.HasSuffix(info.Path, ".json") {
			paths = append(paths, info.Path)
		}
	}
	slices.Sort(paths)
	return paths, nil
}

func (a *Archiver) put(ctx context.Context, path string, data []byte, contentType string) error {
	var err error
	if len(data) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(data), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(data), contentType)
	}
	if err != nil {
		return fmt.Errorf("s3blob: archive %s: %w", path, err)
	}
	return nil
}

// log records the archive in the audit trail. Audit failures do not fail
// the archive.
func (a *Archiver) log(ctx context.Context, event string, detail map[string]any) {
	if a.audit == nil {
		return
	}
	_ = a.audit.Log(ctx, event, detail)
}

// candidateRow is the snapshot form of a MatchCandidate.
type candidateRow struct {
	HuntID          string                 `json:"hunt_id"`
	CriteriaVersion int64                  `json:"criteria_version"`
	ListingID       int64                  `json:"listing_id"`
	Source          string                 `json:"source"`
	SourceListingID string                 `json:"source_listing_id"`
	URL             string                 `json:"url"`
	Vehicle         string                 `json:"vehicle"`
	AskingPrice     *float64               `json:"asking_price,omitempty"`
	FingerprintRank int                    `json:"fingerprint_rank,omitempty"`
	KmScore         float64                `json:"km_score"`
	DNAScore        float64                `json:"dna_score"`
	PriceScore      float64                `json:"price_score"`
	FinalScore      float64                `json:"final_score"`
	Confidence      domain.ConfidenceLabel `json:"confidence"`
	SampleSize      int                    `json:"sample_size"`
	ProvenExitValue *float64               `json:"proven_exit_value,omitempty"`
	ExitAnchor      domain.ExitAnchor      `json:"exit_anchor,omitempty"`
	GapDollars      *float64               `json:"gap_dollars,omitempty"`
	GapPct          *float64               `json:"gap_pct,omitempty"`
	Decision        domain.Decision        `json:"decision"`
	Reasons         []string               `json:"reasons,omitempty"`
	RankPosition    int                    `json:"rank_position"`
	IsCheapest      bool                   `json:"is_cheapest"`
}

func toCandidateRow(c domain.MatchCandidate) candidateRow {
	return candidateRow{
		HuntID:          c.HuntID,
		CriteriaVersion: c.CriteriaVersion,
		ListingID:       c.Listing.ID,
		Source:          c.Listing.Source,
		SourceListingID: c.Listing.SourceListingID,
		URL:             c.Listing.URL,
		Vehicle:         c.Listing.Identity.Summary(),
		AskingPrice:     c.Listing.AskingPrice,
		FingerprintRank: c.FingerprintRank,
		KmScore:         c.KmScore,
		DNAScore:        c.DNAScore,
		PriceScore:      c.PriceScore,
		FinalScore:      c.FinalScore,
		Confidence:      c.Confidence,
		SampleSize:      c.SampleSize,
		ProvenExitValue: c.ProvenExitValue,
		ExitAnchor:      c.ExitAnchor,
		GapDollars:      c.GapDollars,
		GapPct:          c.GapPct,
		Decision:        c.Decision,
		Reasons:         c.Reasons,
		RankPosition:    c.RankPosition,
		IsCheapest:      c.IsCheapest,
	}
}

// marshalJSONL encodes records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*Archiver)(nil)
