package fleet

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jute-fleet-backend/internal/metrics"
	"jute-fleet-backend/internal/model"
	"jute-fleet-backend/internal/store"
)

const testOwner = "owner@example.com"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var testCatalog = []model.CatalogEntry{
	{ID: "M1", Name: "Machine One", Mode: model.ModeNormal},
	{ID: "M2", Name: "Machine Two", Mode: model.ModeEco},
}

type fixture struct {
	engine *Engine
	clock  *fakeClock
	store  *store.MemoryStore
}

// newFixture returns a loaded (seeded) engine whose loops are not running.
func newFixture(t *testing.T, mod ...func(*Options)) *fixture {
	t.Helper()
	clock := newFakeClock()
	st := store.NewMemoryStore()
	opts := Options{
		Store:        st,
		Clock:        clock,
		Random:       rand.NewSource(42),
		PinSource:    func() (string, error) { return "482913", nil },
		Catalog:      testCatalog,
		DefaultOwner: testOwner,
		Metrics:      metrics.New(prometheus.NewRegistry()),
	}
	for _, m := range mod {
		m(&opts)
	}
	e := New(opts)
	e.Load(context.Background())
	return &fixture{engine: e, clock: clock, store: st}
}

func (f *fixture) machine(t *testing.T, id string) model.Machine {
	t.Helper()
	m, err := f.engine.GetMachine(id)
	require.NoError(t, err)
	return m
}

type failingStore struct {
	store.Store
}

func (failingStore) Load(context.Context) (model.Snapshot, error) {
	return model.Snapshot{}, errors.New("disk on fire")
}

func (failingStore) Save(context.Context, model.Snapshot) error {
	return errors.New("disk on fire")
}

func (failingStore) Close() error { return nil }

type recordingListener struct {
	mu     sync.Mutex
	events []model.Event
}

func (l *recordingListener) OnEvent(ev model.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *recordingListener) kinds() []model.EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.EventKind, 0, len(l.events))
	for _, ev := range l.events {
		out = append(out, ev.Kind)
	}
	return out
}

func TestEngine_LoadSeedsEmptyStore(t *testing.T) {
	f := newFixture(t)

	machines := f.engine.Registry().List()
	require.Len(t, machines, 2)
	for _, m := range machines {
		assert.Equal(t, testOwner, m.Owner)
		assert.Equal(t, model.StatusStopped, m.Status)
		assert.Equal(t, model.RentalOwned, m.RentalStatus)
		assert.Nil(t, m.RentalSession)
	}
	assert.Equal(t, 1, f.store.Saves(), "seeded catalog is flushed immediately")
}

func TestEngine_LoadRestoresPersistedState(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.ToggleRun("M1")
	require.NoError(t, err)
	_, err = f.engine.IssuePin("M2")
	require.NoError(t, err)
	require.NoError(t, f.engine.Flush(context.Background()))

	restarted := New(Options{Store: f.store, Clock: f.clock, Catalog: testCatalog, DefaultOwner: testOwner})
	restarted.Load(context.Background())

	m1, err := restarted.GetMachine("M1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRunning, m1.Status)

	pin, ok, err := restarted.ActivePin("M2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "482913", pin.Code)
	assert.Len(t, restarted.Registry().List(), 2, "restored registry is not reseeded")
}

func TestEngine_LoadFailureStartsEmpty(t *testing.T) {
	e := New(Options{
		Store:        failingStore{},
		Clock:        newFakeClock(),
		Catalog:      testCatalog,
		DefaultOwner: testOwner,
	})
	e.Load(context.Background())

	assert.Len(t, e.Registry().List(), 2)
	_, err := e.ToggleRun("M1")
	assert.NoError(t, err, "control keeps working without durable storage")
}

func TestEngine_FlushOnlyWhenChanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.Equal(t, 1, f.store.Saves())

	require.NoError(t, f.engine.Flush(ctx))
	assert.Equal(t, 1, f.store.Saves())

	_, err := f.engine.TriggerAntiJam("M1")
	require.NoError(t, err)
	require.NoError(t, f.engine.Flush(ctx))
	assert.Equal(t, 2, f.store.Saves())

	snap, err := f.store.Load(ctx)
	require.NoError(t, err)
	for _, m := range snap.Machines {
		if m.ID == "M1" {
			assert.Equal(t, 1, m.Telemetry.Jams)
		}
	}
}

func TestEngine_FlushFailureIsReportedAndRetried(t *testing.T) {
	f := newFixture(t)
	f.engine.store = failingStore{}

	_, err := f.engine.TriggerAntiJam("M1")
	require.NoError(t, err)
	assert.Error(t, f.engine.Flush(context.Background()))

	f.engine.store = f.store
	require.NoError(t, f.engine.Flush(context.Background()))
	assert.Equal(t, 2, f.store.Saves())
}

func TestEngine_SubscribeReceivesFilteredUpdates(t *testing.T) {
	f := newFixture(t)
	owner := Viewer{ID: "u1", Email: testOwner, Role: model.RoleOwner}
	stranger := Viewer{ID: "u9", Email: "someone@example.com", Role: model.RoleBorrower}

	initial, ch, unsubscribe := f.engine.Subscribe(owner)
	defer unsubscribe()
	_, strangerCh, strangerUnsub := f.engine.Subscribe(stranger)
	defer strangerUnsub()
	assert.Len(t, initial.Machines, 2)

	_, err := f.engine.ToggleRun("M1")
	require.NoError(t, err)

	select {
	case snap := <-ch:
		require.Len(t, snap.Machines, 2)
		assert.Equal(t, model.StatusRunning, snap.Machines[0].Status)
	case <-time.After(time.Second):
		t.Fatal("owner did not receive a snapshot")
	}

	select {
	case snap := <-strangerCh:
		assert.Empty(t, snap.Machines)
	case <-time.After(time.Second):
		t.Fatal("stranger did not receive a snapshot")
	}
}

func TestEngine_UnsubscribeStopsDelivery(t *testing.T) {
	f := newFixture(t)
	owner := Viewer{ID: "u1", Email: testOwner, Role: model.RoleOwner}

	_, ch, unsubscribe := f.engine.Subscribe(owner)
	unsubscribe()
	unsubscribe()

	f.engine.Tick()
	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, f.engine.hub.Len())
}

func TestEngine_StartStop(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.TickInterval = 5 * time.Millisecond
		o.FlushInterval = 10 * time.Millisecond
	})
	owner := Viewer{ID: "u1", Email: testOwner, Role: model.RoleOwner}

	f.engine.Start(context.Background())
	_, ch, _ := f.engine.Subscribe(owner)

	start := f.engine.Registry().Version()
	require.Eventually(t, func() bool {
		return f.engine.Registry().Version() > start+2
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, f.engine.Stop(context.Background()))
	require.NoError(t, f.engine.Stop(context.Background()), "stop is idempotent")

	stopped := f.engine.Registry().Version()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, f.engine.Registry().Version(), "no tick after Stop")

	for range ch {
	}

	snap, err := f.store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, f.engine.Registry().Snapshot().Machines, snap.Machines, "final state flushed on stop")
}

func TestEngine_TelemetryRangesHold(t *testing.T) {
	f := newFixture(t)
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 3000; i++ {
		id := testCatalog[rng.Intn(len(testCatalog))].ID
		switch rng.Intn(20) {
		case 0:
			_, _ = f.engine.ToggleRun(id)
		case 1:
			_, _ = f.engine.SetSpeed(id, float64(rng.Intn(101)))
		case 2:
			modes := []model.MachineMode{model.ModeEco, model.ModeNormal, model.ModePower}
			_, _ = f.engine.SetMode(id, modes[rng.Intn(len(modes))])
		}
		f.clock.Advance(time.Second)
		f.engine.Tick()

		for _, m := range f.engine.Registry().List() {
			tel := m.Telemetry
			require.GreaterOrEqual(t, tel.MotorTemp, 20.0)
			require.LessOrEqual(t, tel.MotorTemp, 95.0)
			require.GreaterOrEqual(t, tel.RPM, 0.0)
			require.LessOrEqual(t, tel.RPM, 3000.0)
			require.GreaterOrEqual(t, tel.Current, 0.0)
			if m.Status == model.StatusRunning {
				require.GreaterOrEqual(t, tel.Efficiency, 70.0)
				require.LessOrEqual(t, tel.Efficiency, 100.0)
			}
			if m.CurrentMode == model.ModePower && m.Status == model.StatusRunning {
				require.GreaterOrEqual(t, tel.RPM, 50.0)
			}
		}
	}
}

func TestEngine_ListenersSeeCommittedEvents(t *testing.T) {
	l := &recordingListener{}
	f := newFixture(t, func(o *Options) { o.Listeners = []model.EventListener{l} })

	_, err := f.engine.ToggleRun("M1")
	require.NoError(t, err)
	_, err = f.engine.ToggleRun("M1")
	require.NoError(t, err)
	pin, err := f.engine.IssuePin("M1")
	require.NoError(t, err)
	require.True(t, f.engine.ValidateAndActivate("M1", pin.Code, 1, model.UnitHours, "u2"))
	_, err = f.engine.ToggleRun("missing")
	require.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, []model.EventKind{
		model.EventStarted,
		model.EventStopped,
		model.EventPinIssued,
		model.EventRented,
	}, l.kinds())
}

func TestEngine_ConcurrentTogglesEmitInCommitOrder(t *testing.T) {
	l := &recordingListener{}
	f := newFixture(t, func(o *Options) { o.Listeners = []model.EventListener{l} })

	const toggles = 200
	var wg sync.WaitGroup
	for i := 0; i < toggles; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.ToggleRun("M1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	kinds := l.kinds()
	require.Len(t, kinds, toggles)
	for i, k := range kinds {
		want := model.EventStarted
		if i%2 == 1 {
			want = model.EventStopped
		}
		require.Equal(t, want, k, "event %d", i)
	}
	assert.Equal(t, model.StatusStopped, f.machine(t, "M1").Status)
}

func TestRandomPin(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := RandomPin()
		require.NoError(t, err)
		require.Len(t, code, 6)
		assert.NotEqual(t, byte('0'), code[0])
		for _, c := range code {
			assert.True(t, c >= '0' && c <= '9')
		}
	}
}
