package bot

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/delinquency-bot/internal/delinquency"
	"github.com/sells-group/delinquency-bot/internal/model"
)

// Chat commands.
const (
	CmdStart            = "start"
	CmdDelinquents      = "delinquents"
	CmdDelinquentsExcel = "delinquents_excel"
)

const (
	msgUnauthorized = "You are not authorized to use this bot."
	msgWelcome      = "Hello! Welcome to the bot. Choose an option below or use the commands:"
	msgBusy         = "Please wait, an operation is already in progress."
	msgUnavailable  = "Delinquent data is unavailable right now. Please try again later."
	msgExportFailed = "An error occurred while generating the files. Please try again later."
	msgSendFailed   = "The files were generated but could not be delivered. Please try again later."
	msgUnknown      = "Unknown command. Use /start to see the available options."
)

// newPrinter returns a number formatter for locale, falling back to English.
func newPrinter(locale string) *message.Printer {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return message.NewPrinter(tag)
}

func (b *Bot) formatCounts(counts delinquency.Counts) string {
	out := "📊 *Delinquents:*"
	for _, bucket := range model.Buckets {
		bc, ok := counts.Get(bucket)
		value := "unavailable"
		if ok && bc.Err == nil {
			value = b.printer.Sprintf("%d", bc.Count)
		}
		out += b.printer.Sprintf("\n- %d days: %s", bucket.Days(), value)
	}
	return out
}

func (b *Bot) formatExportDone(report *delinquency.Report) string {
	s := report.Stats
	return b.printer.Sprintf(
		"The delinquent files were generated successfully! %d accounts checked, %d enriched, %d without status, %d failed.",
		s.Lookups, s.Enriched, s.Empty, s.Failed,
	)
}
