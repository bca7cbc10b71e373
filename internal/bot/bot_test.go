package bot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/delinquency-bot/internal/config"
	"github.com/sells-group/delinquency-bot/internal/delinquency"
	"github.com/sells-group/delinquency-bot/internal/export"
	"github.com/sells-group/delinquency-bot/internal/model"
	"github.com/sells-group/delinquency-bot/internal/monitoring"
)

const adminID int64 = 42

// --- fakes ---

type fakeSender struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	// existed records, per document path, whether the file was on disk when sent.
	existed map[string]bool
	docErr  error
}

func newFakeSender() *fakeSender {
	return &fakeSender{existed: make(map[string]bool)}
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	if doc, ok := c.(tgbotapi.DocumentConfig); ok {
		path := string(doc.File.(tgbotapi.FilePath))
		_, err := os.Stat(path)
		f.existed[path] = err == nil
		if f.docErr != nil {
			return tgbotapi.Message{}, f.docErr
		}
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m.Text)
		}
	}
	return out
}

func (f *fakeSender) documents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		if d, ok := c.(tgbotapi.DocumentConfig); ok {
			out = append(out, string(d.File.(tgbotapi.FilePath)))
		}
	}
	return out
}

type mockPipeline struct {
	mock.Mock
}

func (m *mockPipeline) Counts(ctx context.Context) delinquency.Counts {
	args := m.Called(ctx)
	return args.Get(0).(delinquency.Counts)
}

func (m *mockPipeline) Run(ctx context.Context) (*delinquency.Report, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*delinquency.Report), args.Error(1)
}

type recordingAlerts struct {
	mu     sync.Mutex
	alerts []monitoring.Alert
}

func (r *recordingAlerts) SendAlerts(_ context.Context, alerts []monitoring.Alert) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, alerts...)
	return len(alerts)
}

// --- helpers ---

func newTestBot(p Pipeline) (*Bot, *fakeSender, *recordingAlerts) {
	s := newFakeSender()
	a := &recordingAlerts{}
	b := New(s, p, config.TelegramConfig{AdminID: adminID, Locale: "en"}, nil, a)
	return b, s, a
}

func command(from int64, cmd string) tgbotapi.Update {
	text := "/" + cmd
	return tgbotapi.Update{
		Message: &tgbotapi.Message{
			From:     &tgbotapi.User{ID: from},
			Chat:     &tgbotapi.Chat{ID: from},
			Text:     text,
			Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(text)}},
		},
	}
}

func writeArtifacts(t *testing.T) *delinquency.Report {
	t.Helper()
	w := export.NewWriter(t.TempDir())
	rows := []model.Account{{ContractCode: "1", Username: "a"}}

	var arts []*export.Artifact
	for _, b := range model.Buckets {
		a, err := w.Export(b, rows)
		require.NoError(t, err)
		arts = append(arts, a)
	}
	return &delinquency.Report{
		RunID:     "run-1",
		Artifacts: arts,
		Stats:     delinquency.Stats{Candidates: 1, Lookups: 1, Enriched: 1, RowsEnriched: 2},
	}
}

// --- tests ---

func TestHandleUpdate_Unauthorized(t *testing.T) {
	p := &mockPipeline{}
	b, s, _ := newTestBot(p)

	for _, cmd := range []string{CmdStart, CmdDelinquents, CmdDelinquentsExcel} {
		b.HandleUpdate(context.Background(), command(7, cmd))
	}

	texts := s.texts()
	require.Len(t, texts, 3)
	for _, txt := range texts {
		assert.Equal(t, msgUnauthorized, txt)
	}
	p.AssertNotCalled(t, "Counts", mock.Anything)
	p.AssertNotCalled(t, "Run", mock.Anything)
}

func TestHandleUpdate_IgnoresNonCommands(t *testing.T) {
	p := &mockPipeline{}
	b, s, _ := newTestBot(p)

	b.HandleUpdate(context.Background(), tgbotapi.Update{})
	b.HandleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: adminID},
		Chat: &tgbotapi.Chat{ID: adminID},
		Text: "hello",
	}})

	assert.Empty(t, s.sent)
}

func TestHandleUpdate_Start(t *testing.T) {
	b, s, _ := newTestBot(&mockPipeline{})

	b.HandleUpdate(context.Background(), command(adminID, CmdStart))

	require.Len(t, s.sent, 1)
	m, ok := s.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, msgWelcome, m.Text)
	kb, ok := m.ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
	require.True(t, ok)
	assert.True(t, kb.ResizeKeyboard)
	require.Len(t, kb.Keyboard, 1)
	require.Len(t, kb.Keyboard[0], 2)
	assert.Equal(t, "/delinquents", kb.Keyboard[0][0].Text)
	assert.Equal(t, "/delinquents_excel", kb.Keyboard[0][1].Text)
}

func TestHandleUpdate_Unknown(t *testing.T) {
	b, s, _ := newTestBot(&mockPipeline{})

	b.HandleUpdate(context.Background(), command(adminID, "nope"))

	assert.Equal(t, []string{msgUnknown}, s.texts())
}

func TestHandleUpdate_Counts(t *testing.T) {
	p := &mockPipeline{}
	p.On("Counts", mock.Anything).Return(delinquency.Counts{
		{Bucket: model.Bucket30, Count: 1234},
		{Bucket: model.Bucket45, Count: 0},
	})
	b, s, _ := newTestBot(p)

	b.HandleUpdate(context.Background(), command(adminID, CmdDelinquents))

	require.Len(t, s.sent, 1)
	m := s.sent[0].(tgbotapi.MessageConfig)
	assert.Equal(t, tgbotapi.ModeMarkdown, m.ParseMode)
	assert.Equal(t, "📊 *Delinquents:*\n- 30 days: 1,234\n- 45 days: 0", m.Text)
	assert.False(t, b.Guard().State().Busy)
	assert.Empty(t, b.Guard().State().LastError)
}

func TestHandleUpdate_CountsUnavailable(t *testing.T) {
	p := &mockPipeline{}
	p.On("Counts", mock.Anything).Return(delinquency.Counts{
		{Bucket: model.Bucket30, Count: 5},
		{Bucket: model.Bucket45, Err: errors.New("boom")},
	})
	b, s, _ := newTestBot(p)

	b.HandleUpdate(context.Background(), command(adminID, CmdDelinquents))

	assert.Equal(t, []string{"📊 *Delinquents:*\n- 30 days: 5\n- 45 days: unavailable"}, s.texts())
	assert.Contains(t, b.Guard().State().LastError, "data unavailable")
}

func TestHandleUpdate_Busy(t *testing.T) {
	p := &mockPipeline{}
	b, s, _ := newTestBot(p)
	require.True(t, b.Guard().TryAcquire("other"))

	b.HandleUpdate(context.Background(), command(adminID, CmdDelinquents))
	b.HandleUpdate(context.Background(), command(adminID, CmdDelinquentsExcel))

	assert.Equal(t, []string{msgBusy, msgBusy}, s.texts())
	p.AssertNotCalled(t, "Counts", mock.Anything)
	p.AssertNotCalled(t, "Run", mock.Anything)
}

func TestHandleUpdate_ExportDeliversAndCleansUp(t *testing.T) {
	report := writeArtifacts(t)
	p := &mockPipeline{}
	p.On("Run", mock.Anything).Return(report, nil)
	b, s, _ := newTestBot(p)

	b.HandleUpdate(context.Background(), command(adminID, CmdDelinquentsExcel))

	docs := s.documents()
	require.Len(t, docs, 2)
	assert.Equal(t, "delinquents_30_days.xlsx", filepath.Base(docs[0]))
	assert.Equal(t, "delinquents_45_days.xlsx", filepath.Base(docs[1]))
	for _, d := range docs {
		assert.True(t, s.existed[d], "file should exist while sending %s", d)
		assert.NoFileExists(t, d)
	}

	texts := s.texts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "generated successfully")
	assert.Contains(t, texts[0], "1 accounts checked")

	st := b.Guard().State()
	assert.False(t, st.Busy)
	assert.Equal(t, "run-1", st.LastRunID)
	assert.Empty(t, st.LastError)
}

func TestHandleUpdate_ExportSendFailureStillCleansUp(t *testing.T) {
	report := writeArtifacts(t)
	p := &mockPipeline{}
	p.On("Run", mock.Anything).Return(report, nil)
	b, s, _ := newTestBot(p)
	s.docErr = errors.New("telegram down")

	b.HandleUpdate(context.Background(), command(adminID, CmdDelinquentsExcel))

	assert.Equal(t, []string{msgSendFailed}, s.texts())
	for _, a := range report.Artifacts {
		assert.NoFileExists(t, a.Path)
	}
	assert.Contains(t, b.Guard().State().LastError, "telegram down")
}

func TestHandleUpdate_ExportErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"data unavailable", eris.Wrap(delinquency.ErrDataUnavailable, "bucket 30_days has no rows"), msgUnavailable},
		{"export failure", eris.Wrap(delinquency.ErrExport, "bucket 45_days: disk full"), msgExportFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &mockPipeline{}
			p.On("Run", mock.Anything).Return(nil, tt.err)
			b, s, _ := newTestBot(p)

			b.HandleUpdate(context.Background(), command(adminID, CmdDelinquentsExcel))

			assert.Equal(t, []string{tt.want}, s.texts())
			assert.Empty(t, s.documents())
			assert.False(t, b.Guard().State().Busy)
		})
	}
}

func TestRunScheduled(t *testing.T) {
	report := writeArtifacts(t)
	p := &mockPipeline{}
	p.On("Run", mock.Anything).Return(report, nil)
	b, s, a := newTestBot(p)

	require.NoError(t, b.RunScheduled(context.Background()))

	assert.Len(t, s.documents(), 2)
	for _, c := range s.sent {
		switch v := c.(type) {
		case tgbotapi.MessageConfig:
			assert.Equal(t, adminID, v.ChatID)
		case tgbotapi.DocumentConfig:
			assert.Equal(t, adminID, v.ChatID)
		}
	}
	assert.Empty(t, a.alerts)
}

func TestRunScheduled_Alerts(t *testing.T) {
	tests := []struct {
		name string
		busy bool
		err  error
		want monitoring.AlertType
	}{
		{name: "skipped when busy", busy: true, want: monitoring.AlertRunSkipped},
		{name: "data unavailable", err: eris.Wrap(delinquency.ErrDataUnavailable, "x"), want: monitoring.AlertDataUnavailable},
		{name: "run failed", err: eris.Wrap(delinquency.ErrExport, "x"), want: monitoring.AlertRunFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &mockPipeline{}
			if tt.err != nil {
				p.On("Run", mock.Anything).Return(nil, tt.err)
			}
			b, _, a := newTestBot(p)
			if tt.busy {
				require.True(t, b.Guard().TryAcquire(CmdDelinquents))
			}

			err := b.RunScheduled(context.Background())
			require.Error(t, err)
			require.Len(t, a.alerts, 1)
			assert.Equal(t, tt.want, a.alerts[0].Type)
		})
	}
}

func TestRunScheduled_NilAlerts(t *testing.T) {
	p := &mockPipeline{}
	p.On("Run", mock.Anything).Return(nil, eris.Wrap(delinquency.ErrExport, "x"))
	b := New(newFakeSender(), p, config.TelegramConfig{AdminID: adminID}, nil, nil)

	assert.Error(t, b.RunScheduled(context.Background()))
}

func TestRegisterCommands(t *testing.T) {
	b, s, _ := newTestBot(&mockPipeline{})

	require.NoError(t, b.RegisterCommands())

	require.Len(t, s.requests, 1)
	cfg, ok := s.requests[0].(tgbotapi.SetMyCommandsConfig)
	require.True(t, ok)
	require.Len(t, cfg.Commands, 3)
	assert.Equal(t, CmdStart, cfg.Commands[0].Command)
	assert.Equal(t, CmdDelinquents, cfg.Commands[1].Command)
	assert.Equal(t, CmdDelinquentsExcel, cfg.Commands[2].Command)
}

func TestListen_StopsOnClose(t *testing.T) {
	p := &mockPipeline{}
	b, s, _ := newTestBot(p)

	updates := make(chan tgbotapi.Update, 2)
	updates <- command(adminID, CmdStart)
	updates <- command(adminID, "nope")
	close(updates)

	done := make(chan error, 1)
	go func() { done <- b.Listen(context.Background(), updates) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Listen did not return after channel close")
	}
	assert.Len(t, s.texts(), 2)
}

func TestListen_StopsOnCancel(t *testing.T) {
	b, _, _ := newTestBot(&mockPipeline{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, b.Listen(ctx, make(chan tgbotapi.Update)))
}

type recordingMetrics struct {
	mu      sync.Mutex
	runs    []string
	lookups [3]int
	rows    map[string]int
}

func (r *recordingMetrics) ObserveRun(trigger, result string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, trigger+":"+result)
}

func (r *recordingMetrics) ObserveLookups(enriched, empty, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups[0] += enriched
	r.lookups[1] += empty
	r.lookups[2] += failed
}

func (r *recordingMetrics) SetExportedRows(bucket string, rows int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rows == nil {
		r.rows = make(map[string]int)
	}
	r.rows[bucket] = rows
}

func TestMetrics_RecordsRunOutcomes(t *testing.T) {
	report := writeArtifacts(t)
	p := &mockPipeline{}
	p.On("Run", mock.Anything).Return(report, nil).Once()
	p.On("Run", mock.Anything).Return(nil, eris.Wrap(delinquency.ErrDataUnavailable, "x")).Once()

	m := &recordingMetrics{}
	b := New(newFakeSender(), p, config.TelegramConfig{AdminID: adminID}, nil, nil, WithMetrics(m))

	b.HandleUpdate(context.Background(), command(adminID, CmdDelinquentsExcel))
	require.Error(t, b.RunScheduled(context.Background()))
	require.True(t, b.Guard().TryAcquire("other"))
	require.Error(t, b.RunScheduled(context.Background()))

	assert.Equal(t, []string{"command:ok", "schedule:unavailable", "schedule:busy"}, m.runs)
	assert.Equal(t, [3]int{1, 0, 0}, m.lookups)
	assert.Equal(t, map[string]int{"30_days": 1, "45_days": 1}, m.rows)
}
