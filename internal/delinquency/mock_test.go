package delinquency

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/delinquency-bot/internal/export"
	"github.com/sells-group/delinquency-bot/internal/model"
	"github.com/sells-group/delinquency-bot/pkg/hasura"
	"github.com/sells-group/delinquency-bot/pkg/verifier"
)

// --- Verifier Mock ---

type mockVerifier struct {
	mock.Mock
}

func (m *mockVerifier) Verify(ctx context.Context, username, networkAddress string) (*verifier.Response, error) {
	args := m.Called(ctx, username, networkAddress)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*verifier.Response), args.Error(1)
}

// --- Source Mock ---

type mockSource struct {
	mock.Mock
}

func (m *mockSource) Delinquents(ctx context.Context, days int) ([]hasura.Delinquent, error) {
	args := m.Called(ctx, days)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]hasura.Delinquent), args.Error(1)
}

// --- Exporter Mock ---

type mockExporter struct {
	mock.Mock
}

func (m *mockExporter) Export(bucket model.Bucket, rows []model.Account) (*export.Artifact, error) {
	args := m.Called(bucket, rows)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*export.Artifact), args.Error(1)
}

func strPtr(s string) *string { return &s }

func okResponse(status, plan string) *verifier.Response {
	return &verifier.Response{Status: strPtr(status), Plan: strPtr(plan)}
}
