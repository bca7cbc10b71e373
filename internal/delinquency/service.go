package delinquency

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/delinquency-bot/internal/export"
	"github.com/sells-group/delinquency-bot/internal/model"
	"github.com/sells-group/delinquency-bot/pkg/hasura"
)

// Source fetches the raw delinquency rows for one aging bucket.
type Source interface {
	Delinquents(ctx context.Context, days int) ([]hasura.Delinquent, error)
}

// Exporter writes one bucket's dataset to a spreadsheet artifact.
type Exporter interface {
	Export(bucket model.Bucket, rows []model.Account) (*export.Artifact, error)
}

// Service runs the fetch, enrich and export pipeline.
type Service struct {
	source   Source
	verifier Verifier
	exporter Exporter
	now      func() time.Time
}

// NewService creates a Service with all dependencies.
func NewService(src Source, v Verifier, exp Exporter) *Service {
	return &Service{
		source:   src,
		verifier: v,
		exporter: exp,
		now:      time.Now,
	}
}

// BucketCount is the size of one bucket, or the error that prevented fetching it.
type BucketCount struct {
	Bucket model.Bucket
	Count  int
	Err    error
}

// Counts holds the per-bucket counts in model.Buckets order.
type Counts []BucketCount

// Failed reports whether any bucket could not be fetched.
func (c Counts) Failed() bool {
	for _, bc := range c {
		if bc.Err != nil {
			return true
		}
	}
	return false
}

// Get returns the count for b.
func (c Counts) Get(b model.Bucket) (BucketCount, bool) {
	for _, bc := range c {
		if bc.Bucket == b {
			return bc, true
		}
	}
	return BucketCount{}, false
}

// Counts fetches both buckets and reports their sizes. A genuinely empty
// bucket counts as zero; a failed fetch is carried in BucketCount.Err.
func (s *Service) Counts(ctx context.Context) Counts {
	out := make(Counts, 0, len(model.Buckets))
	for _, b := range model.Buckets {
		rows, err := s.source.Delinquents(ctx, b.Days())
		if err != nil {
			zap.L().Error("delinquency: fetch failed",
				zap.String("bucket", b.String()),
				zap.Error(err),
			)
		}
		out = append(out, BucketCount{Bucket: b, Count: len(rows), Err: err})
	}
	return out
}

// Report describes a completed pipeline run.
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Artifacts  []*export.Artifact
	Stats      Stats
}

// Cleanup removes every artifact in the report, logging failures.
func (r *Report) Cleanup() {
	if r == nil {
		return
	}
	for _, a := range r.Artifacts {
		if err := a.Remove(); err != nil {
			zap.L().Warn("delinquency: remove artifact", zap.String("path", a.Path), zap.Error(err))
		}
	}
}

// Run fetches both buckets, enriches them and exports one artifact per bucket.
// Either every artifact is produced or none is left behind.
func (s *Service) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: s.now(),
	}
	log := zap.L().With(zap.String("run_id", report.RunID))
	log.Info("delinquency: run starting")

	datasets := make(map[model.Bucket][]model.Account, len(model.Buckets))
	for _, b := range model.Buckets {
		rows, err := s.fetch(ctx, b)
		if err != nil {
			log.Error("delinquency: run aborted", zap.Error(err))
			return nil, err
		}
		datasets[b] = rows
	}

	enriched, err := Enrich(ctx, s.verifier, datasets[model.Bucket30], datasets[model.Bucket45])
	if err != nil {
		log.Error("delinquency: enrichment aborted", zap.Error(err))
		return nil, err
	}
	report.Stats = enriched.Stats

	out := map[model.Bucket][]model.Account{
		model.Bucket30: enriched.Bucket30,
		model.Bucket45: enriched.Bucket45,
	}
	for _, b := range model.Buckets {
		art, err := s.exporter.Export(b, out[b])
		if err != nil {
			report.Cleanup()
			log.Error("delinquency: export failed", zap.String("bucket", b.String()), zap.Error(err))
			return nil, eris.Wrapf(ErrExport, "bucket %s: %v", b, err)
		}
		report.Artifacts = append(report.Artifacts, art)
	}

	report.FinishedAt = s.now()
	log.Info("delinquency: run complete",
		zap.Int("artifacts", len(report.Artifacts)),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, nil
}

func (s *Service) fetch(ctx context.Context, b model.Bucket) ([]model.Account, error) {
	rows, err := s.source.Delinquents(ctx, b.Days())
	if err != nil {
		return nil, eris.Wrapf(ErrDataUnavailable, "bucket %s: %v", b, err)
	}
	if len(rows) == 0 {
		return nil, eris.Wrapf(ErrDataUnavailable, "bucket %s has no rows", b)
	}
	return toAccounts(rows), nil
}

func toAccounts(rows []hasura.Delinquent) []model.Account {
	out := make([]model.Account, len(rows))
	for i, r := range rows {
		out[i] = model.Account{
			ContractCode:      string(r.ContractCode),
			ConnectionBlocked: bool(r.ConnectionBlocked),
			IsReduced:         bool(r.IsReduced),
			NetworkAddress:    r.NetworkAddress,
			CustomerName:      r.CustomerName,
			ResellerName:      r.ResellerName,
			Username:          r.Username,
		}
	}
	return out
}
