package scheduler

import (
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/billing_backend/models"
)

// State is the outcome of evaluating one template at one instant.
type State string

const (
	StateInactive State = "inactive"
	StateIdle     State = "idle"
	StateDue      State = "due"
	// StateFired: the current occurrence was claimed but the template was
	// not advanced.
	StateFired  State = "fired"
	StateMissed State = "missed"
)

// NextRun returns the occurrence after from, or nil once the rule's end date
// is passed. Monthly and yearly rules keep the anchor day and clamp it to the
// end of shorter months.
func NextRun(rule models.IntervalRule, from time.Time) *time.Time {
	every := rule.Every
	if every < 1 {
		every = 1
	}
	var next time.Time
	switch rule.Terms {
	case models.RecurringTermsDay:
		next = from.AddDate(0, 0, every)
	case models.RecurringTermsWeek:
		next = from.AddDate(0, 0, 7*every)
	case models.RecurringTermsMonth:
		next = addMonthsClamped(from, every, anchorDay(rule, from))
	case models.RecurringTermsYear:
		next = addMonthsClamped(from, 12*every, anchorDay(rule, from))
	default:
		return nil
	}
	if rule.EndDate != nil && next.After(*rule.EndDate) {
		return nil
	}
	return &next
}

func anchorDay(rule models.IntervalRule, from time.Time) int {
	if rule.AnchorDay > 0 {
		return rule.AnchorDay
	}
	return from.Day()
}

func addMonthsClamped(from time.Time, months int, anchor int) time.Time {
	first := time.Date(from.Year(), from.Month()+time.Month(months), 1, from.Hour(), from.Minute(), from.Second(), from.Nanosecond(), from.Location())
	day := anchor
	if last := daysIn(first.Year(), first.Month(), from.Location()); day > last {
		day = last
	}
	return first.AddDate(0, 0, day-1)
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// Evaluate classifies the template at now. The window is
// [nextRunAt - tolerance, nextRunAt + tolerance].
func Evaluate(tpl *models.RecurringTemplate, now time.Time, tolerance time.Duration) State {
	if tpl == nil || !tpl.Active {
		return StateInactive
	}
	if tpl.NextRunAt == nil {
		return StateIdle
	}
	if tpl.HasFired() {
		return StateFired
	}
	next := *tpl.NextRunAt
	if now.Before(next.Add(-tolerance)) {
		return StateIdle
	}
	if !now.After(next.Add(tolerance)) {
		return StateDue
	}
	return StateMissed
}

// advanceRunAt moves past occurrence, skipping values that are still inside
// the window at now. Without catch-up every value up to the end of the
// window is skipped; with it, older values are kept so they fire late.
func advanceRunAt(rule models.IntervalRule, occurrence time.Time, now time.Time, tolerance time.Duration, catchUp bool) *time.Time {
	windowEnd := now.Add(tolerance)
	windowStart := now.Add(-tolerance)
	next := NextRun(rule, occurrence)
	for next != nil && !next.After(windowEnd) {
		if catchUp && next.Before(windowStart) {
			break
		}
		next = NextRun(rule, *next)
	}
	return next
}

// OccurrenceInvoiceId is stable per template and occurrence, so a generated
// invoice can be found again after an interrupted run.
func OccurrenceInvoiceId(templateId string, occurrence time.Time) string {
	name := templateId + "|" + occurrence.UTC().Format(time.RFC3339Nano)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}
