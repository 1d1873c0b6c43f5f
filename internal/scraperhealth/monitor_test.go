package scraperhealth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/listingtrust-backend/internal/data/repos"
	"github.com/yungbote/listingtrust-backend/internal/data/repos/testutil"
	types "github.com/yungbote/listingtrust-backend/internal/domain"
	"github.com/yungbote/listingtrust-backend/internal/platform/dbctx"
	"github.com/yungbote/listingtrust-backend/internal/platform/notify"
)

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []notify.Alert
}

func (r *recordingAlerter) Alert(_ context.Context, a notify.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return nil
}

func (r *recordingAlerter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

var t0 = time.Date(2026, 5, 1, 6, 0, 0, 0, time.UTC)

func newTestMonitor(t *testing.T, al notify.Alerter) (*monitor, repos.Repos) {
	t.Helper()
	log := testutil.Logger(t)
	r := repos.New(testutil.DB(t), log)
	m, err := newMonitor(log, r.Runs, r.Retries, al, Config{})
	require.NoError(t, err)
	m.now = func() time.Time { return t0 }
	return m, r
}

func TestRetryDelaysDoubleThenAlertOnce(t *testing.T) {
	al := &recordingAlerter{}
	m, r := newTestMonitor(t, al)
	ctx := context.Background()
	boom := errors.New("cars24 http 503")

	for k, want := range []time.Duration{5 * time.Minute, 10 * time.Minute, 20 * time.Minute} {
		e, err := m.RecordFailure(ctx, "Cars24", boom)
		require.NoError(t, err)
		require.NotNil(t, e)
		assert.Equal(t, k+1, e.AttemptNumber)
		assert.Equal(t, t0.Add(want), e.NextRetryAt)
	}
	assert.Equal(t, 0, al.count())

	e, err := m.RecordFailure(ctx, "Cars24", boom)
	require.NoError(t, err)
	assert.Nil(t, e)
	require.Equal(t, 1, al.count())
	assert.Equal(t, 3, al.alerts[0].Attempts)
	assert.Equal(t, "cars24 http 503", al.alerts[0].LastError)

	row, err := r.Retries.Get(dbctx.Context{Ctx: ctx}, "Cars24")
	require.NoError(t, err)
	assert.Nil(t, row)
	assert.Empty(t, m.Pending())

	// a fresh failure starts a new cycle and does not re-alert
	e, err = m.RecordFailure(ctx, "Cars24", boom)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, 1, e.AttemptNumber)
	assert.Equal(t, 1, al.count())
}

func TestSuccessClearsRetry(t *testing.T) {
	m, r := newTestMonitor(t, nil)
	ctx := context.Background()

	_, err := m.RecordFailure(ctx, "OLX", errors.New("timeout"))
	require.NoError(t, err)
	require.Len(t, m.Pending(), 1)

	require.NoError(t, m.RecordSuccess(ctx, "OLX"))
	assert.Empty(t, m.Pending())
	row, err := r.Retries.Get(dbctx.Context{Ctx: ctx}, "OLX")
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestDueRetriesPopsOnlyElapsed(t *testing.T) {
	m, r := newTestMonitor(t, nil)
	ctx := context.Background()

	_, err := m.RecordFailure(ctx, "OLX", errors.New("x"))
	require.NoError(t, err)
	_, err = m.RecordFailure(ctx, "CarWale", errors.New("x"))
	require.NoError(t, err)
	_, err = m.RecordFailure(ctx, "CarWale", errors.New("x"))
	require.NoError(t, err)

	m.now = func() time.Time { return t0.Add(6 * time.Minute) }
	due := m.DueRetries(ctx)
	require.Len(t, due, 1)
	assert.Equal(t, "OLX", due[0].ScraperName)
	assert.Empty(t, m.DueRetries(ctx), "popped entries are not returned twice")

	pending := m.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "CarWale", pending[0].ScraperName)

	// the durable row survives the pop until the scraper succeeds or fails again
	row, err := r.Retries.Get(dbctx.Context{Ctx: ctx}, "OLX")
	require.NoError(t, err)
	require.NotNil(t, row)
}

func TestLoadRestoresQueueAfterRestart(t *testing.T) {
	log := testutil.Logger(t)
	r := repos.New(testutil.DB(t), log)
	ctx := context.Background()

	first, err := newMonitor(log, r.Runs, r.Retries, nil, Config{BaseDelay: time.Minute})
	require.NoError(t, err)
	first.now = func() time.Time { return t0 }
	_, err = first.RecordFailure(ctx, "Spinny", errors.New("x"))
	require.NoError(t, err)

	second, err := newMonitor(log, r.Runs, r.Retries, nil, Config{BaseDelay: time.Minute})
	require.NoError(t, err)
	assert.Empty(t, second.Pending())
	require.NoError(t, second.Load(ctx))
	pending := second.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "Spinny", pending[0].ScraperName)
	assert.Equal(t, 1, pending[0].AttemptNumber)

	e, err := second.RecordFailure(ctx, "Spinny", errors.New("x"))
	require.NoError(t, err)
	assert.Equal(t, 2, e.AttemptNumber)
}

func TestRunLifecycle(t *testing.T) {
	m, r := newTestMonitor(t, nil)
	ctx := context.Background()

	run, err := m.StartRun(ctx, "CarDekho")
	require.NoError(t, err)
	assert.Equal(t, types.RunStatusRunning, run.Status)

	m.now = func() time.Time { return t0.Add(90 * time.Second) }
	require.NoError(t, m.FinishRun(ctx, run, RunOutcome{Err: errors.New("login wall")}))
	assert.Equal(t, types.RunStatusFailed, run.Status)
	require.NotNil(t, run.DurationSeconds)
	assert.Equal(t, 90.0, *run.DurationSeconds)
	require.Len(t, m.Pending(), 1)

	stored, err := r.Runs.GetByID(dbctx.Context{Ctx: ctx}, run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RunStatusFailed, stored.Status)
	assert.Equal(t, "login wall", stored.ErrorMessage)

	// closing twice is a no-op
	require.NoError(t, m.FinishRun(ctx, run, RunOutcome{Found: 10}))

	next, err := m.StartRun(ctx, "CarDekho")
	require.NoError(t, err)
	require.NoError(t, m.FinishRun(ctx, next, RunOutcome{Found: 12, Saved: 9}))
	assert.Empty(t, m.Pending())
}
