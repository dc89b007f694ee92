package scheduler

import (
	"testing"
	"time"

	"github.com/mmdatafocus/billing_backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 9, 0, 0, 0, time.UTC)
}

func TestNextRun(t *testing.T) {
	end := at(2026, 3, 1)
	tests := []struct {
		name string
		rule models.IntervalRule
		from time.Time
		want *time.Time
	}{
		{"daily", models.IntervalRule{Terms: models.RecurringTermsDay, Every: 3}, at(2026, 1, 30), ptr(at(2026, 2, 2))},
		{"weekly", models.IntervalRule{Terms: models.RecurringTermsWeek, Every: 2}, at(2026, 1, 1), ptr(at(2026, 1, 15))},
		{"every zero is one", models.IntervalRule{Terms: models.RecurringTermsDay}, at(2026, 1, 1), ptr(at(2026, 1, 2))},
		{"month end clamps", models.IntervalRule{Terms: models.RecurringTermsMonth, Every: 1, AnchorDay: 31}, at(2026, 1, 31), ptr(at(2026, 2, 28))},
		{"anchor restored", models.IntervalRule{Terms: models.RecurringTermsMonth, Every: 1, AnchorDay: 31}, at(2026, 2, 28), ptr(at(2026, 3, 31))},
		{"leap february", models.IntervalRule{Terms: models.RecurringTermsMonth, Every: 1, AnchorDay: 31}, at(2028, 1, 31), ptr(at(2028, 2, 29))},
		{"anchor defaults to from day", models.IntervalRule{Terms: models.RecurringTermsMonth, Every: 2}, at(2026, 1, 15), ptr(at(2026, 3, 15))},
		{"yearly from leap day", models.IntervalRule{Terms: models.RecurringTermsYear, Every: 1, AnchorDay: 29}, at(2028, 2, 29), ptr(at(2029, 2, 28))},
		{"past end date", models.IntervalRule{Terms: models.RecurringTermsMonth, Every: 1, EndDate: &end}, at(2026, 2, 15), nil},
		{"on end date", models.IntervalRule{Terms: models.RecurringTermsDay, Every: 1, EndDate: &end}, at(2026, 2, 28), ptr(end)},
		{"unknown terms", models.IntervalRule{Terms: "Q", Every: 1}, at(2026, 1, 1), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextRun(tt.rule, tt.from)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.True(t, tt.want.Equal(*got), "want %s got %s", tt.want, got)
			assert.True(t, got.After(tt.from))
		})
	}
}

func TestEvaluate(t *testing.T) {
	next := at(2026, 1, 31)
	tol := time.Minute
	active := &models.RecurringTemplate{Active: true, NextRunAt: &next}

	assert.Equal(t, StateIdle, Evaluate(active, next.Add(-2*time.Minute), tol))
	assert.Equal(t, StateDue, Evaluate(active, next.Add(-time.Minute), tol))
	assert.Equal(t, StateDue, Evaluate(active, next, tol))
	assert.Equal(t, StateDue, Evaluate(active, next.Add(time.Minute), tol))
	assert.Equal(t, StateMissed, Evaluate(active, next.Add(time.Minute+time.Second), tol))

	fired := &models.RecurringTemplate{Active: true, NextRunAt: &next, LastFiredRunAt: ptr(next)}
	assert.Equal(t, StateFired, Evaluate(fired, next.Add(time.Hour), tol))

	assert.Equal(t, StateInactive, Evaluate(&models.RecurringTemplate{NextRunAt: &next}, next, tol))
	assert.Equal(t, StateIdle, Evaluate(&models.RecurringTemplate{Active: true}, next, tol))
}

func TestAdvanceRunAt(t *testing.T) {
	daily := models.IntervalRule{Terms: models.RecurringTermsDay, Every: 1}
	occ := at(2026, 1, 1)
	now := occ.Add(50*time.Hour + 30*time.Minute)

	skipped := advanceRunAt(daily, occ, now, time.Minute, false)
	require.NotNil(t, skipped)
	assert.True(t, skipped.Equal(at(2026, 1, 4)))

	caughtUp := advanceRunAt(daily, occ, now, time.Minute, true)
	require.NotNil(t, caughtUp)
	assert.True(t, caughtUp.Equal(at(2026, 1, 2)))

	// a value inside the window is skipped even with catch-up
	inWindow := advanceRunAt(daily, occ, at(2026, 1, 2).Add(30*time.Second), time.Minute, true)
	require.NotNil(t, inWindow)
	assert.True(t, inWindow.Equal(at(2026, 1, 3)))
}

func TestOccurrenceInvoiceIdIsStable(t *testing.T) {
	occ := at(2026, 1, 31)
	a := OccurrenceInvoiceId("tpl-1", occ)
	assert.Equal(t, a, OccurrenceInvoiceId("tpl-1", occ.In(time.FixedZone("MMT", 23400))))
	assert.NotEqual(t, a, OccurrenceInvoiceId("tpl-1", occ.Add(time.Second)))
	assert.NotEqual(t, a, OccurrenceInvoiceId("tpl-2", occ))
}

func ptr[T any](v T) *T {
	return &v
}
