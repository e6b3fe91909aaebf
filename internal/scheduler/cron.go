package scheduler

import (
	"strings"
	"sync"

	"github.com/lnquy/cron"
)

// cronDescriber is built once; nil when the descriptor could not be
// created, in which case expressions are shown verbatim.
var cronDescriber = sync.OnceValue(func() func(string) (string, error) {
	d, err := cron.NewDescriptor(
		cron.Use24HourTimeFormat(true),
		cron.DayOfWeekStartsAtOne(false),
		cron.SetLocales(cron.Locale_en),
	)
	if err != nil {
		return nil
	}
	return func(expr string) (string, error) {
		return d.ToDescription(expr, cron.Locale_en)
	}
})

// CronToHuman renders a cron expression as an English phrase. Expressions
// the descriptor rejects are returned verbatim so the schedule is never
// misrepresented.
func CronToHuman(expr string) string {
	expr = strings.TrimSpace(expr)
	if n := len(strings.Fields(expr)); n < 5 || n > 7 {
		return expr
	}
	describe := cronDescriber()
	if describe == nil {
		return expr
	}
	desc, err := describe(expr)
	if err != nil || strings.TrimSpace(desc) == "" {
		return expr
	}
	return desc
}
