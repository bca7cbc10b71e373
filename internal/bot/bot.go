// Package bot is the Telegram front end: it authorizes the operator, routes
// commands to the delinquency pipeline and delivers the exported files.
package bot

import (
	"context"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/message"

	"github.com/sells-group/delinquency-bot/internal/config"
	"github.com/sells-group/delinquency-bot/internal/delinquency"
	"github.com/sells-group/delinquency-bot/internal/monitoring"
)

// ErrBusy is returned when an operation is already running.
var ErrBusy = eris.New("bot: operation already in progress")

// Sender is the subset of tgbotapi.BotAPI the bot uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Pipeline runs delinquency counts and exports.
type Pipeline interface {
	Counts(ctx context.Context) delinquency.Counts
	Run(ctx context.Context) (*delinquency.Report, error)
}

// AlertSender delivers operational alerts.
type AlertSender interface {
	SendAlerts(ctx context.Context, alerts []monitoring.Alert) int
}

// Metrics records run outcomes.
type Metrics interface {
	ObserveRun(trigger, result string, elapsed time.Duration)
	ObserveLookups(enriched, empty, failed int)
	SetExportedRows(bucket string, rows int)
}

// Option configures a Bot.
type Option func(*Bot)

// WithMetrics records every export attempt on m.
func WithMetrics(m Metrics) Option {
	return func(b *Bot) {
		b.metrics = m
	}
}

// Bot handles Telegram updates for a single authorized operator.
type Bot struct {
	api      Sender
	pipeline Pipeline
	adminID  int64
	guard    *RunGuard
	alerts   AlertSender
	metrics  Metrics
	printer  *message.Printer
}

// New creates a Bot. alerts may be nil.
func New(api Sender, p Pipeline, cfg config.TelegramConfig, guard *RunGuard, alerts AlertSender, opts ...Option) *Bot {
	if guard == nil {
		guard = NewRunGuard()
	}
	b := &Bot{
		api:      api,
		pipeline: p,
		adminID:  cfg.AdminID,
		guard:    guard,
		alerts:   alerts,
		printer:  newPrinter(cfg.Locale),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Guard exposes the run guard shared with the scheduler and status server.
func (b *Bot) Guard() *RunGuard { return b.guard }

// RegisterCommands publishes the command menu shown by Telegram clients.
func (b *Bot) RegisterCommands() error {
	cmds := tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: CmdStart, Description: "Start the bot"},
		tgbotapi.BotCommand{Command: CmdDelinquents, Description: "Count delinquents (30 and 45 days)"},
		tgbotapi.BotCommand{Command: CmdDelinquentsExcel, Description: "Generate delinquent spreadsheets"},
	)
	if _, err := b.api.Request(cmds); err != nil {
		return eris.Wrap(err, "bot: set commands")
	}
	return nil
}

// Listen handles updates until ctx is cancelled or the channel closes. Each
// update is handled on its own goroutine so a long export does not block
// replies; the RunGuard keeps pipeline work serialized.
func (b *Bot) Listen(ctx context.Context, updates <-chan tgbotapi.Update) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	zap.L().Info("bot: listening for updates", zap.Int64("admin_id", b.adminID))
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				b.HandleUpdate(ctx, u)
			}()
		}
	}
}

// HandleUpdate routes a single update.
func (b *Bot) HandleUpdate(ctx context.Context, u tgbotapi.Update) {
	msg := u.Message
	if msg == nil || !msg.IsCommand() {
		return
	}
	if !b.authorized(msg) {
		return
	}

	chatID := msg.Chat.ID
	switch msg.Command() {
	case CmdStart:
		b.handleStart(chatID)
	case CmdDelinquents:
		b.handleCounts(ctx, chatID)
	case CmdDelinquentsExcel:
		if err := b.runExport(ctx, chatID, "command"); err != nil && !eris.Is(err, ErrBusy) {
			zap.L().Error("bot: export command failed", zap.Error(err))
		}
	default:
		b.reply(chatID, msgUnknown)
	}
}

// RunScheduled performs the daily export and delivers it to the admin chat.
func (b *Bot) RunScheduled(ctx context.Context) error {
	err := b.runExport(ctx, b.adminID, "schedule")
	switch {
	case err == nil:
		return nil
	case eris.Is(err, ErrBusy):
		b.alert(ctx, monitoring.NewAlert(monitoring.AlertRunSkipped, "low",
			"scheduled export skipped: an operation was already in progress", nil))
	case eris.Is(err, delinquency.ErrDataUnavailable):
		b.alert(ctx, monitoring.NewAlert(monitoring.AlertDataUnavailable, "medium",
			"scheduled export aborted: delinquent data unavailable", map[string]any{"error": err.Error()}))
	default:
		b.alert(ctx, monitoring.NewAlert(monitoring.AlertRunFailed, "high",
			"scheduled export failed", map[string]any{"error": err.Error()}))
	}
	return err
}

func (b *Bot) authorized(msg *tgbotapi.Message) bool {
	if msg.From != nil && msg.From.ID == b.adminID {
		return true
	}
	var userID int64
	if msg.From != nil {
		userID = msg.From.ID
	}
	zap.L().Warn("bot: unauthorized user", zap.Int64("user_id", userID))
	b.reply(msg.Chat.ID, msgUnauthorized)
	return false
}

func (b *Bot) handleStart(chatID int64) {
	keyboard := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("/"+CmdDelinquents),
			tgbotapi.NewKeyboardButton("/"+CmdDelinquentsExcel),
		),
	)
	keyboard.ResizeKeyboard = true

	m := tgbotapi.NewMessage(chatID, msgWelcome)
	m.ReplyMarkup = keyboard
	b.send(m)
}

func (b *Bot) handleCounts(ctx context.Context, chatID int64) {
	if !b.guard.TryAcquire(CmdDelinquents) {
		b.reply(chatID, msgBusy)
		return
	}

	counts := b.pipeline.Counts(ctx)
	var err error
	if counts.Failed() {
		err = eris.Wrap(delinquency.ErrDataUnavailable, "bot: count delinquents")
	}
	b.guard.Release("", err)

	m := tgbotapi.NewMessage(chatID, b.formatCounts(counts))
	m.ParseMode = tgbotapi.ModeMarkdown
	b.send(m)
}

// runExport runs the pipeline, sends every artifact to chatID and removes
// the files afterwards regardless of delivery outcome.
func (b *Bot) runExport(ctx context.Context, chatID int64, trigger string) (err error) {
	if !b.guard.TryAcquire(CmdDelinquentsExcel) {
		zap.L().Info("bot: export rejected, guard busy", zap.String("trigger", trigger))
		b.observe(trigger, monitoring.ResultBusy, 0)
		b.reply(chatID, msgBusy)
		return ErrBusy
	}

	start := time.Now()
	var runID string
	defer func() {
		b.guard.Release(runID, err)
		b.observe(trigger, runResult(err), time.Since(start))
	}()

	report, err := b.pipeline.Run(ctx)
	if err != nil {
		if eris.Is(err, delinquency.ErrDataUnavailable) {
			b.reply(chatID, msgUnavailable)
		} else {
			b.reply(chatID, msgExportFailed)
		}
		return err
	}
	runID = report.RunID
	defer report.Cleanup()
	b.observeReport(report)

	log := zap.L().With(zap.String("run_id", runID), zap.String("trigger", trigger))
	for _, a := range report.Artifacts {
		doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(a.Path))
		if _, sendErr := b.api.Send(doc); sendErr != nil {
			log.Error("bot: send document failed", zap.String("path", a.Path), zap.Error(sendErr))
			b.reply(chatID, msgSendFailed)
			return eris.Wrapf(sendErr, "bot: send %s", a.Bucket)
		}
	}

	b.reply(chatID, b.formatExportDone(report))
	log.Info("bot: export delivered", zap.Int("artifacts", len(report.Artifacts)))
	return nil
}

func runResult(err error) string {
	switch {
	case err == nil:
		return monitoring.ResultOK
	case eris.Is(err, delinquency.ErrDataUnavailable):
		return monitoring.ResultUnavailable
	default:
		return monitoring.ResultFailed
	}
}

func (b *Bot) observe(trigger, result string, elapsed time.Duration) {
	if b.metrics != nil {
		b.metrics.ObserveRun(trigger, result, elapsed)
	}
}

func (b *Bot) observeReport(r *delinquency.Report) {
	if b.metrics == nil {
		return
	}
	b.metrics.ObserveLookups(r.Stats.Enriched, r.Stats.Empty, r.Stats.Failed)
	for _, a := range r.Artifacts {
		b.metrics.SetExportedRows(a.Bucket.String(), a.Rows)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.api.Send(c); err != nil {
		zap.L().Warn("bot: send message failed", zap.Error(err))
	}
}

func (b *Bot) alert(ctx context.Context, a monitoring.Alert) {
	zap.L().Warn("bot: scheduled run problem", zap.String("type", string(a.Type)), zap.String("message", a.Message))
	if b.alerts == nil {
		return
	}
	b.alerts.SendAlerts(ctx, []monitoring.Alert{a})
}
