package fleet

import (
	"sync"
	"time"

	"jute-fleet-backend/internal/model"
)

// Registry is the in-memory set of machines and run logs. Every mutation goes
// through Mutate, MutateWithLog or MutateAll, which serialize on one mutex.
type Registry struct {
	mu       sync.Mutex
	machines map[string]*model.Machine
	order    []string
	runLogs  []model.RunLog // newest first
	nextSeq  int64
	version  uint64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{machines: make(map[string]*model.Machine)}
}

// Restore replaces the registry content with snap.
func (r *Registry) Restore(snap model.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.machines = make(map[string]*model.Machine, len(snap.Machines))
	r.order = r.order[:0]
	for _, m := range snap.Machines {
		if _, dup := r.machines[m.ID]; dup || m.ID == "" {
			continue
		}
		c := m.Clone()
		normalizeRental(&c)
		r.machines[m.ID] = &c
		r.order = append(r.order, m.ID)
	}

	// Sequence numbers are rebuilt from position so that backends which do
	// not keep them still restore newest-first ordering.
	r.runLogs = make([]model.RunLog, len(snap.RunLogs))
	copy(r.runLogs, snap.RunLogs)
	n := int64(len(r.runLogs))
	for i := range r.runLogs {
		r.runLogs[i].Seq = n - int64(i)
	}
	r.nextSeq = n + 1
	r.version++
}

// normalizeRental repairs a loaded machine whose rental fields disagree.
func normalizeRental(m *model.Machine) {
	if m.RentalSession == nil {
		m.RentalStatus = model.RentalOwned
	} else {
		m.RentalStatus = model.RentalRented
	}
}

// SeedIfEmpty inserts the catalog, owned by owner, only when the registry has
// no machines. It returns the number of machines inserted.
func (r *Registry) SeedIfEmpty(catalog []model.CatalogEntry, owner string, now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.machines) > 0 {
		return 0
	}
	for _, entry := range catalog {
		if _, dup := r.machines[entry.ID]; dup || entry.ID == "" {
			continue
		}
		mode := entry.Mode
		if !mode.Valid() {
			mode = model.ModeNormal
		}
		m := model.Machine{
			ID:           entry.ID,
			Name:         entry.Name,
			Owner:        owner,
			Status:       model.StatusStopped,
			CurrentMode:  mode,
			RentalStatus: model.RentalOwned,
			Telemetry: model.Telemetry{
				MotorTemp:        minMotorTemp,
				Efficiency:       85,
				ConnectionStatus: model.ConnectionLive,
				LastSeen:         now,
			},
		}
		r.machines[m.ID] = &m
		r.order = append(r.order, m.ID)
	}
	if len(r.order) > 0 {
		r.version++
	}
	return len(r.order)
}

// Get returns a copy of the machine with the given id.
func (r *Registry) Get(id string) (model.Machine, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.machines[id]
	if !ok {
		return model.Machine{}, false
	}
	return m.Clone(), true
}

// List returns copies of every machine in registry order.
func (r *Registry) List() []model.Machine {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Machine, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.machines[id].Clone())
	}
	return out
}

// Len returns the number of machines.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.machines)
}

// Mutate applies fn to a copy of the machine and commits the copy only if fn
// returns nil. It returns the committed machine.
func (r *Registry) Mutate(id string, fn func(m *model.Machine) error) (model.Machine, error) {
	m, _, err := r.MutateWithLog(id, func(m *model.Machine) (*model.RunLog, error) {
		return nil, fn(m)
	})
	return m, err
}

// MutateWithLog is Mutate for operations that may also produce a run log.
// The machine change and the run log append commit together.
func (r *Registry) MutateWithLog(id string, fn func(m *model.Machine) (*model.RunLog, error)) (model.Machine, *model.RunLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.machines[id]
	if !ok {
		return model.Machine{}, nil, ErrNotFound
	}

	next := cur.Clone()
	runLog, err := fn(&next)
	if err != nil {
		return cur.Clone(), nil, err
	}
	next.ID = cur.ID

	*cur = next
	if runLog != nil {
		runLog.Seq = r.nextSeq
		r.nextSeq++
		r.runLogs = append([]model.RunLog{*runLog}, r.runLogs...)
	}
	r.version++

	var logCopy *model.RunLog
	if runLog != nil {
		l := *runLog
		logCopy = &l
	}
	return next.Clone(), logCopy, nil
}

// MutateAll applies fn to every machine in one critical section.
func (r *Registry) MutateAll(fn func(m *model.Machine)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		m := r.machines[id]
		fn(m)
		m.ID = id
	}
	if len(r.order) > 0 {
		r.version++
	}
}

// RunLog returns the run log with the given id.
func (r *Registry) RunLog(id string) (model.RunLog, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.runLogs {
		if l.ID == id {
			return l, true
		}
	}
	return model.RunLog{}, false
}

// Snapshot returns a deep copy of the full registry state.
func (r *Registry) Snapshot() model.Snapshot {
	snap, _ := r.VersionedSnapshot()
	return snap
}

// VersionedSnapshot returns the snapshot together with the version it reflects.
func (r *Registry) VersionedSnapshot() (model.Snapshot, uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := model.Snapshot{
		Machines: make([]model.Machine, 0, len(r.order)),
		RunLogs:  make([]model.RunLog, len(r.runLogs)),
	}
	for _, id := range r.order {
		snap.Machines = append(snap.Machines, r.machines[id].Clone())
	}
	copy(snap.RunLogs, r.runLogs)
	return snap, r.version
}

// Version increases on every committed change.
func (r *Registry) Version() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.version
}
