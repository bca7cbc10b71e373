// Package delinquency fetches delinquent accounts, enriches them against the
// verification API and exports one spreadsheet per aging bucket.
package delinquency

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/delinquency-bot/internal/model"
	"github.com/sells-group/delinquency-bot/pkg/verifier"
)

var (
	// ErrDataUnavailable means a bucket could not be fetched or came back empty.
	ErrDataUnavailable = eris.New("delinquency: data unavailable")
	// ErrExport means an artifact could not be written.
	ErrExport = eris.New("delinquency: export failed")
)

// Verifier looks up the live status of one account.
type Verifier interface {
	Verify(ctx context.Context, username, networkAddress string) (*verifier.Response, error)
}

// Stats summarizes one enrichment pass.
type Stats struct {
	Candidates   int // distinct usernames across both buckets
	Lookups      int // verification calls issued
	Enriched     int // lookups that returned a status
	Empty        int // lookups without a status
	Failed       int // lookups that errored
	RowsEnriched int // rows written back across both buckets
}

// Enriched holds both datasets after write-back.
type Enriched struct {
	Bucket30 []model.Account
	Bucket45 []model.Account
	Stats    Stats
}

// Enrich verifies each distinct account once and writes status and plan onto
// every matching row of both buckets. The inputs are not modified; the
// returned datasets keep their row count and order.
//
// Either bucket being empty aborts with ErrDataUnavailable. A failed lookup
// only leaves that account unenriched.
func Enrich(ctx context.Context, v Verifier, bucket30, bucket45 []model.Account) (*Enriched, error) {
	if len(bucket30) == 0 {
		return nil, eris.Wrapf(ErrDataUnavailable, "bucket %s is empty", model.Bucket30)
	}
	if len(bucket45) == 0 {
		return nil, eris.Wrapf(ErrDataUnavailable, "bucket %s is empty", model.Bucket45)
	}

	out := &Enriched{
		Bucket30: append([]model.Account(nil), bucket30...),
		Bucket45: append([]model.Account(nil), bucket45...),
	}

	idx30 := indexByUsername(out.Bucket30)
	idx45 := indexByUsername(out.Bucket45)

	candidates := Candidates(out.Bucket30, out.Bucket45)
	out.Stats.Candidates = len(candidates)
	cache := NewLookupCache(len(candidates))

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "delinquency: enrichment cancelled")
		}

		outcome, cached := cache.Get(c.Username)
		if !cached {
			outcome = lookup(ctx, v, c)
			cache.Put(c.Username, outcome)
			out.Stats.Lookups++
			switch outcome.Kind {
			case model.LookupEnriched:
				out.Stats.Enriched++
			case model.LookupEmpty:
				out.Stats.Empty++
			case model.LookupFailed:
				out.Stats.Failed++
			}
		}

		if outcome.Kind != model.LookupEnriched {
			continue
		}
		out.Stats.RowsEnriched += writeBack(out.Bucket30, idx30[c.Username], outcome.Enrichment)
		out.Stats.RowsEnriched += writeBack(out.Bucket45, idx45[c.Username], outcome.Enrichment)
	}

	zap.L().Info("delinquency: enrichment complete",
		zap.Int("candidates", out.Stats.Candidates),
		zap.Int("lookups", out.Stats.Lookups),
		zap.Int("enriched", out.Stats.Enriched),
		zap.Int("empty", out.Stats.Empty),
		zap.Int("failed", out.Stats.Failed),
		zap.Int("rows_enriched", out.Stats.RowsEnriched),
	)

	return out, nil
}

// lookup converts a verifier call into a tagged outcome.
func lookup(ctx context.Context, v Verifier, c model.Candidate) model.LookupOutcome {
	resp, err := v.Verify(ctx, c.Username, c.NetworkAddress)
	if err != nil {
		zap.L().Warn("delinquency: verification failed",
			zap.String("username", c.Username),
			zap.String("network_address", c.NetworkAddress),
			zap.Error(err),
		)
		return model.LookupOutcome{Kind: model.LookupFailed, Err: err}
	}
	if resp == nil || resp.Status == nil {
		zap.L().Debug("delinquency: verification returned no status",
			zap.String("username", c.Username),
		)
		return model.LookupOutcome{Kind: model.LookupEmpty}
	}

	plan, ok := resp.PlanName()
	if !ok {
		plan = model.DefaultPlan
	}
	return model.LookupOutcome{
		Kind:       model.LookupEnriched,
		Enrichment: model.Enrichment{Status: *resp.Status, Plan: plan},
	}
}

func indexByUsername(rows []model.Account) map[string][]int {
	idx := make(map[string][]int, len(rows))
	for i, r := range rows {
		idx[r.Username] = append(idx[r.Username], i)
	}
	return idx
}

// writeBack gives each indexed row its own copy of e and returns the count.
func writeBack(rows []model.Account, positions []int, e model.Enrichment) int {
	for _, i := range positions {
		en := e
		rows[i].Enrichment = &en
	}
	return len(positions)
}
