package followup

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/teemow/inboxcopilot/internal/agent"
)

// Known categories. Anything else is shown as "General".
const (
	CategoryUnanswered  = "unanswered"
	CategoryCommitments = "commitments"
	CategoryQuestions   = "questions"
	CategoryFlagged     = "flagged"

	// CategoryAll disables filtering.
	CategoryAll = "all"
)

// Item is one email that needs a follow-up.
type Item struct {
	Subject      string `json:"email_subject"`
	Sender       string `json:"sender"`
	LastActivity string `json:"last_activity,omitempty"`
	Category     string `json:"category"`
	Reason       string `json:"reason,omitempty"`
	DaysWaiting  int    `json:"days_waiting"`
	ThreadID     string `json:"thread_id"`
	HasReminder  bool   `json:"has_reminder"`
	ReminderDate string `json:"reminder_date,omitempty"`
	DraftContent string `json:"draft_content,omitempty"`
}

// CategoryLabel is the display name of the item's category.
func (i Item) CategoryLabel() string {
	switch strings.ToLower(i.Category) {
	case CategoryUnanswered:
		return "Unanswered"
	case CategoryCommitments:
		return "Commitments"
	case CategoryQuestions:
		return "Questions"
	case CategoryFlagged:
		return "Flagged"
	default:
		return "General"
	}
}

// CategorySummary holds per-category counts.
type CategorySummary struct {
	Unanswered  int `json:"unanswered"`
	Commitments int `json:"commitments"`
	Questions   int `json:"questions"`
	Flagged     int `json:"flagged"`
}

// ScanResult is the outcome of one follow-up scan.
type ScanResult struct {
	Items         []Item          `json:"follow_up_items"`
	TotalCount    int             `json:"total_count"`
	Categories    CategorySummary `json:"categories_summary"`
	ScanTimestamp string          `json:"scan_timestamp"`
	Status        string          `json:"status"`
	Message       string          `json:"message,omitempty"`
}

func (r *ScanResult) clone() *ScanResult {
	if r == nil {
		return nil
	}
	c := *r
	c.Items = slices.Clone(r.Items)
	return &c
}

// Options tune a scan.
type Options struct {
	// ThresholdDays is the age after which an unanswered email counts.
	ThresholdDays int

	CommitmentDetection bool
	QuestionDetection   bool
}

// ConnectionObserver receives evidence about the mail connection.
type ConnectionObserver interface {
	ObserveSuccess(ctx context.Context)
	ObserveAuthRequired(ctx context.Context)
}

type nopObserver struct{}

func (nopObserver) ObserveSuccess(context.Context)      {}
func (nopObserver) ObserveAuthRequired(context.Context) {}

// FilterByCategory returns the items of category, in order. Matching is
// case-insensitive; "all" or "" returns every item. The input is not
// modified.
func FilterByCategory(items []Item, category string) []Item {
	category = strings.ToLower(strings.TrimSpace(category))
	if category == "" || category == CategoryAll {
		return slices.Clone(items)
	}
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if strings.ToLower(it.Category) == category {
			out = append(out, it)
		}
	}
	return out
}

// coerce builds a ScanResult from a present payload. Missing or malformed
// fields get defaults; entries of follow_up_items that are not objects are
// skipped.
func coerce(p agent.Payload, now time.Time) *ScanResult {
	res := &ScanResult{
		Items:         itemsFrom(p),
		ScanTimestamp: now.UTC().Format(time.RFC3339),
		Status:        "completed",
		Message:       p.Message(),
	}
	res.TotalCount = len(res.Items)
	if n, ok := p.Int("total_count"); ok && n >= 0 {
		res.TotalCount = n
	}
	if m, ok := p.Object("categories_summary"); ok {
		s := agent.Fields(m)
		res.Categories.Unanswered = nonNegative(s.Int(CategoryUnanswered))
		res.Categories.Commitments = nonNegative(s.Int(CategoryCommitments))
		res.Categories.Questions = nonNegative(s.Int(CategoryQuestions))
		res.Categories.Flagged = nonNegative(s.Int(CategoryFlagged))
	}
	if ts, ok := p.NonEmpty("scan_timestamp"); ok {
		res.ScanTimestamp = ts
	}
	if st, ok := p.NonEmpty("status"); ok {
		res.Status = st
	}
	return res
}

func itemsFrom(p agent.Payload) []Item {
	list, ok := p.List("follow_up_items")
	if !ok {
		return []Item{}
	}
	items := make([]Item, 0, len(list))
	for _, v := range list {
		m, ok := v.(map[string]any)
		if !ok {
			continue
		}
		f := agent.Fields(m)
		it := Item{
			Subject:      str(f, "email_subject"),
			Sender:       str(f, "sender"),
			LastActivity: str(f, "last_activity"),
			Category:     str(f, "category"),
			Reason:       str(f, "reason"),
			DaysWaiting:  nonNegative(f.Int("days_waiting")),
			ThreadID:     str(f, "thread_id"),
			ReminderDate: str(f, "reminder_date"),
			DraftContent: str(f, "draft_content"),
		}
		it.HasReminder, _ = f.Bool("has_reminder")
		items = append(items, it)
	}
	return items
}

func str(p agent.Payload, key string) string {
	s, _ := p.String(key)
	return s
}

func nonNegative(n int, ok bool) int {
	if !ok || n < 0 {
		return 0
	}
	return n
}
