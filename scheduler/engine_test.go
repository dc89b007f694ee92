package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mmdatafocus/billing_backend/events"
	"github.com/mmdatafocus/billing_backend/models"
	"github.com/mmdatafocus/billing_backend/notify"
	"github.com/mmdatafocus/billing_backend/repository"
	"github.com/mmdatafocus/billing_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var firstRun = at(2026, 1, 31)

type recordingDispatcher struct {
	mu       sync.Mutex
	messages []notify.Message
	err      error
}

func (d *recordingDispatcher) Send(_ context.Context, msg notify.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messages = append(d.messages, msg)
	return d.err
}

func (d *recordingDispatcher) sent() []notify.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]notify.Message(nil), d.messages...)
}

// flakyStore fails invoice writes while fail is set.
type flakyStore struct {
	repository.Store
	fail *atomic.Bool
}

func (f *flakyStore) Put(ctx context.Context, rec *repository.Record) error {
	if rec.Kind == repository.KindInvoice && f.fail.Load() {
		return &utils.PersistenceError{Op: "put", Kind: string(rec.Kind), Err: errors.New("connection reset")}
	}
	return f.Store.Put(ctx, rec)
}

func (f *flakyStore) Tx(ctx context.Context, fn func(repository.Store) error) error {
	return f.Store.Tx(ctx, func(s repository.Store) error {
		return fn(&flakyStore{Store: s, fail: f.fail})
	})
}

type testEnv struct {
	repo       *repository.Repository
	clock      *utils.FakeClock
	dispatcher *recordingDispatcher
	engine     *Engine
}

func newTestEnv(t *testing.T, store repository.Store, opts Options) *testEnv {
	t.Helper()
	if store == nil {
		store = repository.NewMemoryStore()
	}
	clock := utils.NewFakeClock(firstRun.Add(-2 * time.Minute))
	var publisher events.Publisher
	if opts.Bus != nil {
		publisher = opts.Bus
	}
	repo := repository.New(store, publisher, clock, nil)
	if opts.WindowTolerance == 0 {
		opts.WindowTolerance = time.Minute
	}
	dispatcher := &recordingDispatcher{}
	return &testEnv{
		repo:       repo,
		clock:      clock,
		dispatcher: dispatcher,
		engine:     NewEngine(repo, dispatcher, clock, nil, opts),
	}
}

func monthlyTemplate(id string) *models.RecurringTemplate {
	next := firstRun
	return &models.RecurringTemplate{
		ID:       id,
		Name:     "Monthly hosting",
		Customer: models.CustomerRef{ID: "cust-1", Name: "Acme Ltd", Email: "billing@acme.test"},
		Items: []models.LineItem{
			{ID: "line-1", Name: "Hosting", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.RequireFromString("49.99")},
		},
		Active:       true,
		SeqPrefix:    "INV-",
		NextNumber:   1,
		NextRunAt:    &next,
		IntervalRule: models.IntervalRule{Terms: models.RecurringTermsMonth, Every: 1, AnchorDay: 31},
		DueInDays:    14,
		CreatedAt:    firstRun.AddDate(0, -1, 0),
	}
}

func (e *testEnv) save(t *testing.T, tpl *models.RecurringTemplate) {
	t.Helper()
	require.NoError(t, e.repo.SaveRecurringTemplate(context.Background(), tpl))
}

func (e *testEnv) template(t *testing.T, id string) *models.RecurringTemplate {
	t.Helper()
	tpl, err := e.repo.GetRecurringTemplate(context.Background(), id)
	require.NoError(t, err)
	return tpl
}

func (e *testEnv) invoices(t *testing.T) []*models.Invoice {
	t.Helper()
	list, err := e.repo.ListInvoices(context.Background())
	require.NoError(t, err)
	return list
}

func (e *testEnv) tickAt(t *testing.T, now time.Time) RunReport {
	t.Helper()
	e.clock.Set(now)
	report, err := e.engine.Tick(context.Background())
	require.NoError(t, err)
	return report
}

func TestTick_FiresOnceAcrossTheWindow(t *testing.T) {
	env := newTestEnv(t, nil, Options{})
	env.save(t, monthlyTemplate("tpl-1"))

	fired := 0
	for _, offset := range []time.Duration{-2 * time.Minute, -30 * time.Second, 12 * time.Second, 2 * time.Minute} {
		report := env.tickAt(t, firstRun.Add(offset))
		assert.Equal(t, 1, report.Evaluated)
		fired += report.Fired
	}
	assert.Equal(t, 1, fired)

	invoices := env.invoices(t)
	require.Len(t, invoices, 1)
	inv := invoices[0]
	assert.Equal(t, OccurrenceInvoiceId("tpl-1", firstRun), inv.ID)
	assert.Equal(t, "INV-0001", inv.Number)
	assert.Equal(t, models.InvoiceStatusSent, inv.Status)
	assert.True(t, inv.CreatedAt.Equal(firstRun.Add(-30*time.Second)))
	require.NotNil(t, inv.Occurrence)
	assert.True(t, inv.Occurrence.Equal(firstRun))
	require.NotNil(t, inv.RecurringTemplateId)
	assert.Equal(t, "tpl-1", *inv.RecurringTemplateId)
	require.NotNil(t, inv.DueDate)
	assert.True(t, inv.DueDate.Equal(inv.CreatedAt.AddDate(0, 0, 14)))
	assert.Equal(t, "cust-1", inv.Customer.ID)
	require.Len(t, inv.Items, 1)
	assert.True(t, inv.Items[0].UnitPrice.Equal(decimal.RequireFromString("49.99")))

	tpl := env.template(t, "tpl-1")
	assert.Equal(t, int64(2), tpl.NextNumber)
	require.NotNil(t, tpl.NextRunAt)
	assert.True(t, tpl.NextRunAt.Equal(at(2026, 2, 28)))
	require.NotNil(t, tpl.LastRunAt)
	assert.True(t, tpl.LastRunAt.Equal(firstRun.Add(-30*time.Second)))
	assert.False(t, tpl.HasFired())
}

func TestTick_NumbersIncreaseAcrossOccurrences(t *testing.T) {
	env := newTestEnv(t, nil, Options{})
	env.save(t, monthlyTemplate("tpl-1"))

	var ids []string
	for _, runAt := range []time.Time{firstRun, at(2026, 2, 28), at(2026, 3, 31)} {
		report := env.tickAt(t, runAt)
		require.Equal(t, 1, report.Fired)
		ids = append(ids, report.Invoices...)
	}

	var numbers []string
	for _, id := range ids {
		inv, err := env.repo.GetInvoice(context.Background(), id)
		require.NoError(t, err)
		numbers = append(numbers, inv.Number)
	}
	assert.Equal(t, []string{"INV-0001", "INV-0002", "INV-0003"}, numbers)
	assert.Equal(t, int64(4), env.template(t, "tpl-1").NextNumber)
}

func TestTick_ConcurrentEnginesGenerateOneInvoice(t *testing.T) {
	env := newTestEnv(t, nil, Options{})
	env.save(t, monthlyTemplate("tpl-1"))
	env.clock.Set(firstRun)

	engines := []*Engine{
		env.engine,
		NewEngine(env.repo, nil, env.clock, nil, Options{WindowTolerance: time.Minute}),
		NewEngine(env.repo, nil, env.clock, nil, Options{WindowTolerance: time.Minute}),
	}

	var fired atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(engine *Engine) {
			defer wg.Done()
			report, err := engine.Tick(context.Background())
			assert.NoError(t, err)
			assert.Zero(t, report.Failed)
			fired.Add(int64(report.Fired))
		}(engines[i%len(engines)])
	}
	wg.Wait()

	assert.Equal(t, int64(1), fired.Load())
	assert.Len(t, env.invoices(t), 1)
	assert.Equal(t, int64(2), env.template(t, "tpl-1").NextNumber)
}

func TestTick_CompletesAClaimedOccurrence(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	env := newTestEnv(t, &flakyStore{Store: repository.NewMemoryStore(), fail: &fail}, Options{})
	env.save(t, monthlyTemplate("tpl-1"))

	report := env.tickAt(t, firstRun)
	assert.Equal(t, 1, report.Failed)
	assert.Empty(t, env.invoices(t))
	tpl := env.template(t, "tpl-1")
	assert.Equal(t, StateFired, Evaluate(tpl, firstRun, time.Minute))
	assert.Equal(t, int64(1), tpl.NextNumber)

	// the store recovers after the window closed
	fail.Store(false)
	report = env.tickAt(t, firstRun.Add(10*time.Minute))
	assert.Equal(t, 1, report.Fired)

	invoices := env.invoices(t)
	require.Len(t, invoices, 1)
	assert.Equal(t, OccurrenceInvoiceId("tpl-1", firstRun), invoices[0].ID)
	assert.Equal(t, "INV-0001", invoices[0].Number)

	tpl = env.template(t, "tpl-1")
	assert.Equal(t, int64(2), tpl.NextNumber)
	assert.True(t, tpl.NextRunAt.Equal(at(2026, 2, 28)))

	report = env.tickAt(t, firstRun.Add(20*time.Minute))
	assert.Zero(t, report.Fired)
	assert.Len(t, env.invoices(t), 1)
}

// advanceFailingStore fails the template write of any transaction that also
// wrote an invoice, while fail is set.
type advanceFailingStore struct {
	repository.Store
	fail         *atomic.Bool
	wroteInvoice bool
}

func (f *advanceFailingStore) Put(ctx context.Context, rec *repository.Record) error {
	switch rec.Kind {
	case repository.KindInvoice:
		f.wroteInvoice = true
	case repository.KindRecurringTemplate:
		if f.wroteInvoice && f.fail.Load() {
			return &utils.PersistenceError{Op: "put", Kind: string(rec.Kind), Err: errors.New("connection reset")}
		}
	}
	return f.Store.Put(ctx, rec)
}

func (f *advanceFailingStore) Tx(ctx context.Context, fn func(repository.Store) error) error {
	return f.Store.Tx(ctx, func(s repository.Store) error {
		return fn(&advanceFailingStore{Store: s, fail: f.fail})
	})
}

func TestTick_FailedAdvanceDiscardsTheInvoice(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	env := newTestEnv(t, &advanceFailingStore{Store: repository.NewMemoryStore(), fail: &fail}, Options{})
	env.save(t, monthlyTemplate("tpl-1"))

	report := env.tickAt(t, firstRun)
	assert.Equal(t, 1, report.Failed)
	assert.Empty(t, env.invoices(t), "the invoice commits only together with the template advance")
	assert.Equal(t, int64(1), env.template(t, "tpl-1").NextNumber)

	fail.Store(false)
	report = env.tickAt(t, firstRun.Add(10*time.Minute))
	assert.Equal(t, 1, report.Fired)

	invoices := env.invoices(t)
	require.Len(t, invoices, 1)
	assert.Equal(t, "INV-0001", invoices[0].Number)
	assert.Equal(t, int64(2), env.template(t, "tpl-1").NextNumber)
}

func TestTick_ClaimedOccurrenceWithExistingInvoiceIsNotRegenerated(t *testing.T) {
	env := newTestEnv(t, nil, Options{})
	tpl := monthlyTemplate("tpl-1")
	claimed := firstRun
	tpl.LastFiredRunAt = &claimed
	env.save(t, tpl)

	existing := tpl.BuildInvoice(OccurrenceInvoiceId("tpl-1", firstRun), "INV-0001", firstRun, firstRun)
	require.NoError(t, env.repo.SaveInvoice(context.Background(), existing))

	report := env.tickAt(t, firstRun.Add(time.Hour))
	assert.Equal(t, 1, report.Fired)
	assert.Len(t, env.invoices(t), 1)

	after := env.template(t, "tpl-1")
	assert.Equal(t, int64(1), after.NextNumber, "no number is consumed for an invoice that already existed")
	assert.True(t, after.NextRunAt.Equal(at(2026, 2, 28)))
}

func TestTick_AutoSend(t *testing.T) {
	env := newTestEnv(t, nil, Options{AutoSend: true})
	tpl := monthlyTemplate("tpl-1")
	tpl.AutoSend = true
	env.save(t, tpl)

	noAddress := monthlyTemplate("tpl-2")
	noAddress.AutoSend = true
	noAddress.Customer = models.CustomerRef{ID: "cust-2", Name: "Walk-in"}
	env.save(t, noAddress)

	report := env.tickAt(t, firstRun)
	assert.Equal(t, 2, report.Fired)
	env.engine.Wait()

	sent := env.dispatcher.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"billing@acme.test"}, sent[0].To)
	assert.Equal(t, notify.ChannelEmail, sent[0].Channel)
	assert.Equal(t, "Invoice INV-0001", sent[0].Subject)
	assert.Equal(t, "tpl-1", sent[0].TemplateId)
	assert.Contains(t, sent[0].Body, "Total due: 49.99")
}

func TestTick_DispatchFailureDoesNotRegenerate(t *testing.T) {
	env := newTestEnv(t, nil, Options{AutoSend: true})
	env.dispatcher.err = errors.New("smtp 421")
	tpl := monthlyTemplate("tpl-1")
	tpl.AutoSend = true
	env.save(t, tpl)

	report := env.tickAt(t, firstRun)
	assert.Equal(t, 1, report.Fired)
	assert.Zero(t, report.Failed)
	env.engine.Wait()

	report = env.tickAt(t, firstRun.Add(30*time.Second))
	assert.Zero(t, report.Fired)
	env.engine.Wait()

	assert.Len(t, env.invoices(t), 1)
	assert.Len(t, env.dispatcher.sent(), 1)
}

func TestTick_AutoSendDisabledByEngine(t *testing.T) {
	env := newTestEnv(t, nil, Options{AutoSend: false})
	tpl := monthlyTemplate("tpl-1")
	tpl.AutoSend = true
	env.save(t, tpl)

	env.tickAt(t, firstRun)
	env.engine.Wait()
	assert.Empty(t, env.dispatcher.sent())
}

func TestTick_MissedOccurrenceIsSkipped(t *testing.T) {
	env := newTestEnv(t, nil, Options{})
	env.save(t, monthlyTemplate("tpl-1"))

	report := env.tickAt(t, firstRun.AddDate(0, 0, 3))
	assert.Zero(t, report.Fired)
	assert.Equal(t, 1, report.Skipped)
	assert.Empty(t, env.invoices(t))

	tpl := env.template(t, "tpl-1")
	assert.True(t, tpl.NextRunAt.Equal(at(2026, 2, 28)))
	assert.Equal(t, int64(1), tpl.NextNumber)
	assert.Nil(t, tpl.LastRunAt)
}

func TestTick_MissedOccurrencesCatchUp(t *testing.T) {
	env := newTestEnv(t, nil, Options{CatchUpMissed: true})
	tpl := monthlyTemplate("tpl-1")
	tpl.IntervalRule = models.IntervalRule{Terms: models.RecurringTermsDay, Every: 1}
	env.save(t, tpl)

	now := firstRun.Add(2*24*time.Hour + 12*time.Hour)
	total := 0
	for i := 0; i < 5; i++ {
		total += env.tickAt(t, now).Fired
	}
	assert.Equal(t, 3, total)

	var occurrences []string
	for _, inv := range env.invoices(t) {
		occurrences = append(occurrences, inv.Occurrence.Format(time.RFC3339))
	}
	assert.ElementsMatch(t, []string{"2026-01-31T09:00:00Z", "2026-02-01T09:00:00Z", "2026-02-02T09:00:00Z"}, occurrences)
	assert.True(t, env.template(t, "tpl-1").NextRunAt.Equal(firstRun.AddDate(0, 0, 3)))
}

func TestTick_ExhaustedScheduleStaysIdle(t *testing.T) {
	env := newTestEnv(t, nil, Options{})
	tpl := monthlyTemplate("tpl-1")
	end := at(2026, 2, 15)
	tpl.IntervalRule.EndDate = &end
	env.save(t, tpl)

	assert.Equal(t, 1, env.tickAt(t, firstRun).Fired)

	after := env.template(t, "tpl-1")
	assert.Nil(t, after.NextRunAt)
	assert.True(t, after.Active)
	assert.Equal(t, StateIdle, Evaluate(after, at(2026, 6, 1), time.Minute))
	assert.Zero(t, env.tickAt(t, at(2026, 2, 28)).Fired)
}

func TestTick_InactiveTemplateIsSkipped(t *testing.T) {
	env := newTestEnv(t, nil, Options{})
	tpl := monthlyTemplate("tpl-1")
	tpl.Active = false
	env.save(t, tpl)
	env.save(t, monthlyTemplate("tpl-2"))

	report := env.tickAt(t, firstRun)
	assert.Equal(t, 2, report.Evaluated)
	assert.Equal(t, 1, report.Fired)
	assert.Equal(t, 1, report.Skipped)
}

func TestTick_LockedTemplateIsSkipped(t *testing.T) {
	env := newTestEnv(t, nil, Options{})
	env.save(t, monthlyTemplate("tpl-1"))

	release, ok, err := env.engine.local.TryLock(context.Background(), "tpl-1")
	require.NoError(t, err)
	require.True(t, ok)

	report := env.tickAt(t, firstRun)
	assert.Equal(t, 1, report.Skipped)
	assert.Empty(t, env.invoices(t))

	release()
	assert.Equal(t, 1, env.tickAt(t, firstRun).Fired)
}

type busyLocker struct{}

func (busyLocker) TryLock(context.Context, string) (func(), bool, error) {
	return nil, false, nil
}

func TestTick_RemoteLockHeldElsewhere(t *testing.T) {
	env := newTestEnv(t, nil, Options{Locker: busyLocker{}})
	env.save(t, monthlyTemplate("tpl-1"))

	report := env.tickAt(t, firstRun)
	assert.Equal(t, 1, report.Skipped)

	// the local lock was released with the remote refusal
	_, ok, _ := env.engine.local.TryLock(context.Background(), "tpl-1")
	assert.True(t, ok)
}

func TestRun_TriggerAndTemplateChanges(t *testing.T) {
	bus := events.NewBus()
	env := newTestEnv(t, nil, Options{Bus: bus, TickInterval: time.Hour})
	env.clock.Set(firstRun)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.engine.Run(ctx) }()

	// saved through the repository: the change event starts a run
	env.save(t, monthlyTemplate("tpl-1"))
	require.Eventually(t, func() bool {
		return len(env.invoices(t)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// a manual trigger after the next occurrence becomes due
	env.clock.Set(at(2026, 2, 28))
	env.engine.Trigger()
	require.Eventually(t, func() bool {
		return len(env.invoices(t)) == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop")
	}
}

func TestLocalLocks(t *testing.T) {
	locks := newLocalLocks()
	release, ok, err := locks.TryLock(context.Background(), "a")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, _ = locks.TryLock(context.Background(), "a")
	assert.False(t, ok)
	_, ok, _ = locks.TryLock(context.Background(), "b")
	assert.True(t, ok)

	release()
	_, ok, _ = locks.TryLock(context.Background(), "a")
	assert.True(t, ok)
}
