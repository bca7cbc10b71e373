package main

import (
	"time"

	"github.com/sells-group/delinquency-bot/internal/config"
	"github.com/sells-group/delinquency-bot/internal/delinquency"
	"github.com/sells-group/delinquency-bot/internal/export"
	"github.com/sells-group/delinquency-bot/pkg/hasura"
	"github.com/sells-group/delinquency-bot/pkg/verifier"
)

// initService validates the pipeline config and wires the Hasura source,
// the verifier client (behind an optional breaker) and the spreadsheet
// writer into a delinquency.Service.
// exportDir overrides cfg.Export.Dir when non-empty.
func initService(c *config.Config, exportDir string) (*delinquency.Service, error) {
	if err := c.Validate("pipeline"); err != nil {
		return nil, err
	}

	hasuraOpts := []hasura.Option{}
	if c.Hasura.Schema != "" {
		hasuraOpts = append(hasuraOpts, hasura.WithSchema(c.Hasura.Schema))
	}
	if c.Hasura.TimeoutSecs > 0 {
		hasuraOpts = append(hasuraOpts, hasura.WithTimeout(time.Duration(c.Hasura.TimeoutSecs)*time.Second))
	}
	src := hasura.NewClient(c.Hasura.URL, c.Hasura.AdminSecret, hasuraOpts...)

	verifierOpts := []verifier.Option{verifier.WithRateLimit(c.Verifier.RatePerSec)}
	if c.Verifier.TimeoutSecs > 0 {
		verifierOpts = append(verifierOpts, verifier.WithTimeout(time.Duration(c.Verifier.TimeoutSecs)*time.Second))
	}
	v := delinquency.WithBreaker(
		verifier.NewClient(c.Verifier.URL, c.Verifier.Token, verifierOpts...),
		delinquency.NewVerifierBreaker(c.Verifier.BreakerThreshold, c.Verifier.BreakerResetSecs),
	)

	dir := c.Export.Dir
	if exportDir != "" {
		dir = exportDir
	}
	return delinquency.NewService(src, v, export.NewWriter(dir)), nil
}
