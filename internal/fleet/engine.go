// Package fleet is the machine state and rental engine: the registry, the
// telemetry simulator, the PIN-gated rental controller and snapshot fan-out.
package fleet

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	mrand "math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"jute-fleet-backend/internal/logs"
	"jute-fleet-backend/internal/metrics"
	"jute-fleet-backend/internal/model"
	"jute-fleet-backend/internal/store"
)

// Options configures an Engine. Zero values get the production defaults.
type Options struct {
	Store store.Store
	Clock Clock
	// Random feeds telemetry jitter.
	Random mrand.Source
	// PinSource generates share codes. Defaults to crypto/rand.
	PinSource func() (string, error)

	TickInterval  time.Duration
	FlushInterval time.Duration
	PinLifetime   time.Duration
	// OverridePin, when non-empty, validates for every machine.
	OverridePin string

	Catalog      []model.CatalogEntry
	DefaultOwner string

	Metrics   *metrics.Metrics
	Listeners []model.EventListener
}

// Engine owns the registry for the lifetime of the process.
type Engine struct {
	registry  *Registry
	hub       *Hub
	sim       *Simulator
	store     store.Store
	clock     Clock
	pinSource func() (string, error)
	metrics   *metrics.Metrics
	listeners []model.EventListener
	log       *logrus.Entry

	tickInterval  time.Duration
	flushInterval time.Duration
	pinLifetime   time.Duration
	overridePin   string
	catalog       []model.CatalogEntry
	defaultOwner  string

	// pubMu orders snapshot publication so subscribers never see state go
	// backwards.
	pubMu sync.Mutex
	// eventMu is held from commit through emit by every operation that
	// produces an event, so listeners see events in commit order.
	eventMu sync.Mutex

	flushMu      sync.Mutex
	savedVersion uint64

	runMu   sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped bool
}

// New builds an engine. Call Start to load state and begin ticking.
func New(opts Options) *Engine {
	if opts.Store == nil {
		opts.Store = store.NewMemoryStore()
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	if opts.Random == nil {
		opts.Random = mrand.NewSource(time.Now().UnixNano())
	}
	if opts.PinSource == nil {
		opts.PinSource = RandomPin
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 5 * time.Second
	}
	if opts.PinLifetime <= 0 {
		opts.PinLifetime = 10 * time.Minute
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(prometheus.NewRegistry())
	}

	return &Engine{
		registry:      NewRegistry(),
		hub:           NewHub(),
		sim:           NewSimulator(opts.Random),
		store:         opts.Store,
		clock:         opts.Clock,
		pinSource:     opts.PinSource,
		metrics:       opts.Metrics,
		listeners:     opts.Listeners,
		log:           logs.Logger.WithField("component", "fleet"),
		tickInterval:  opts.TickInterval,
		flushInterval: opts.FlushInterval,
		pinLifetime:   opts.PinLifetime,
		overridePin:   opts.OverridePin,
		catalog:       opts.Catalog,
		defaultOwner:  opts.DefaultOwner,
	}
}

// RandomPin returns a uniformly random six digit code without a leading zero.
func RandomPin() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("failed to generate pin: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// Registry exposes the underlying registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Load restores the registry from the store and seeds it if it is empty.
// Load failures are logged and the engine continues with empty state.
func (e *Engine) Load(ctx context.Context) {
	snap, err := e.store.Load(ctx)
	if err != nil {
		e.metrics.PersistenceFailures.Inc()
		e.log.WithError(err).Warn("failed to load persisted state; starting empty")
		snap = model.Snapshot{}
	}
	e.registry.Restore(snap)

	// A freshly restored registry matches the store, so it is not dirty.
	e.flushMu.Lock()
	e.savedVersion = e.registry.Version()
	e.flushMu.Unlock()

	if n := e.registry.SeedIfEmpty(e.catalog, e.defaultOwner, e.clock.Now()); n > 0 {
		e.log.WithField("machines", n).Info("seeded machine catalog")
		if err := e.Flush(ctx); err != nil {
			e.log.WithError(err).Warn("failed to persist seeded catalog")
		}
	}
	e.log.WithFields(logrus.Fields{
		"machines": e.registry.Len(),
		"run_logs": len(snap.RunLogs),
	}).Info("fleet state loaded")
}

// Start loads state and launches the tick and flush loops. They run until
// ctx is cancelled or Stop is called.
func (e *Engine) Start(ctx context.Context) {
	e.Load(ctx)

	e.runMu.Lock()
	defer e.runMu.Unlock()
	loopCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		e.runTicker(loopCtx)
	}()
	go func() {
		defer e.wg.Done()
		e.runFlusher(loopCtx)
	}()
	e.log.WithFields(logrus.Fields{
		"tick":  e.tickInterval,
		"flush": e.flushInterval,
	}).Info("fleet engine started")
}

// Stop halts both loops, closes every subscription and writes a final
// snapshot. No tick or notification happens after Stop returns.
func (e *Engine) Stop(ctx context.Context) error {
	e.runMu.Lock()
	if e.stopped {
		e.runMu.Unlock()
		return nil
	}
	e.stopped = true
	if e.cancel != nil {
		e.cancel()
	}
	e.runMu.Unlock()

	e.wg.Wait()

	e.pubMu.Lock()
	e.hub.Close()
	e.metrics.Subscribers.Set(0)
	e.pubMu.Unlock()

	err := e.Flush(ctx)
	e.log.Info("fleet engine stopped")
	return err
}

func (e *Engine) runTicker(ctx context.Context) {
	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Tick()
		}
	}
}

func (e *Engine) runFlusher(ctx context.Context) {
	timer := time.NewTimer(e.flushInterval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if err := e.Flush(ctx); err != nil {
				e.log.WithError(err).Error("periodic flush failed; state is held in memory until the next successful save")
			}
			timer.Reset(e.flushInterval)
		}
	}
}

// Tick advances every machine by one simulation step and publishes.
func (e *Engine) Tick() {
	now := e.clock.Now()
	e.registry.MutateAll(func(m *model.Machine) {
		e.sim.Step(m, now)
	})
	e.metrics.Ticks.Inc()
	e.publish()
}

// Flush saves the registry if it changed since the last successful save.
func (e *Engine) Flush(ctx context.Context) error {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	snap, version := e.registry.VersionedSnapshot()
	if version == e.savedVersion {
		return nil
	}
	if err := e.store.Save(ctx, snap); err != nil {
		e.metrics.PersistenceFailures.Inc()
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	e.savedVersion = version
	e.metrics.Flushes.Inc()
	return nil
}

// publish pushes the current registry state to every subscriber.
func (e *Engine) publish() {
	e.pubMu.Lock()
	defer e.pubMu.Unlock()
	e.hub.Broadcast(e.registry.Snapshot())
}

// emit hands a committed event to the listeners.
func (e *Engine) emit(kind model.EventKind, m model.Machine, runLog *model.RunLog) {
	if len(e.listeners) == 0 {
		return
	}
	ev := model.Event{Kind: kind, Machine: m, RunLog: runLog, At: e.clock.Now()}
	for _, l := range e.listeners {
		l.OnEvent(ev)
	}
}

// Subscribe registers a viewer. The returned channel receives a fresh
// filtered snapshot after every committed change and is closed by
// unsubscribe or by Stop.
func (e *Engine) Subscribe(v Viewer) (model.Snapshot, <-chan model.Snapshot, func()) {
	e.pubMu.Lock()
	defer e.pubMu.Unlock()

	initial, ch, unsubscribe := e.hub.Subscribe(v, e.registry.Snapshot())
	e.metrics.Subscribers.Set(float64(e.hub.Len()))
	return initial, ch, func() {
		unsubscribe()
		e.metrics.Subscribers.Set(float64(e.hub.Len()))
	}
}

// Snapshot returns v's current view without subscribing.
func (e *Engine) Snapshot(v Viewer) model.Snapshot {
	return Filter(e.registry.Snapshot(), v)
}

// GetMachine returns the machine with the given id.
func (e *Engine) GetMachine(id string) (model.Machine, error) {
	m, ok := e.registry.Get(id)
	if !ok {
		return model.Machine{}, ErrNotFound
	}
	return m, nil
}

// RunLogs returns the run logs of the machines v can see, newest first.
func (e *Engine) RunLogs(v Viewer) []model.RunLog {
	return e.Snapshot(v).RunLogs
}

// RunLog returns a single run log.
func (e *Engine) RunLog(id string) (model.RunLog, bool) {
	return e.registry.RunLog(id)
}

func (e *Engine) record(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	e.metrics.Operations.WithLabelValues(op, result).Inc()
}
