package fleet

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jute-fleet-backend/internal/model"
)

func TestRegistry_SeedIfEmptyIsIdempotent(t *testing.T) {
	r := NewRegistry()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 2, r.SeedIfEmpty(testCatalog, testOwner, now))
	once := r.List()
	assert.Equal(t, 0, r.SeedIfEmpty(testCatalog, testOwner, now))
	assert.Equal(t, once, r.List())

	m, ok := r.Get("M2")
	require.True(t, ok)
	assert.Equal(t, model.ModeEco, m.CurrentMode)
	assert.Equal(t, model.ConnectionLive, m.Telemetry.ConnectionStatus)
	assert.Equal(t, now, m.Telemetry.LastSeen)
}

func TestRegistry_SeedSkipsDuplicatesAndBadModes(t *testing.T) {
	r := NewRegistry()
	n := r.SeedIfEmpty([]model.CatalogEntry{
		{ID: "A", Name: "A", Mode: model.MachineMode("WARP")},
		{ID: "A", Name: "A again"},
		{ID: "", Name: "nameless"},
	}, testOwner, time.Now())

	assert.Equal(t, 1, n)
	m, ok := r.Get("A")
	require.True(t, ok)
	assert.Equal(t, "A", m.Name)
	assert.Equal(t, model.ModeNormal, m.CurrentMode)
}

func TestRegistry_MutateIsAllOrNothing(t *testing.T) {
	r := NewRegistry()
	r.SeedIfEmpty(testCatalog, testOwner, time.Now())
	before, _ := r.Get("M1")
	version := r.Version()

	boom := errors.New("boom")
	_, err := r.Mutate("M1", func(m *model.Machine) error {
		m.Status = model.StatusRunning
		m.Telemetry.Jams = 99
		m.Pin = &model.Pin{Code: "123123"}
		return boom
	})
	require.ErrorIs(t, err, boom)

	after, _ := r.Get("M1")
	assert.Equal(t, before, after)
	assert.Equal(t, version, r.Version())
}

func TestRegistry_MutateUnknown(t *testing.T) {
	r := NewRegistry()
	called := false
	_, err := r.Mutate("ghost", func(*model.Machine) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, called)
}

func TestRegistry_MutateCannotRenameMachine(t *testing.T) {
	r := NewRegistry()
	r.SeedIfEmpty(testCatalog, testOwner, time.Now())

	m, err := r.Mutate("M1", func(m *model.Machine) error {
		m.ID = "hijacked"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "M1", m.ID)
	_, ok := r.Get("hijacked")
	assert.False(t, ok)
}

func TestRegistry_ReturnedMachinesAreCopies(t *testing.T) {
	r := NewRegistry()
	r.SeedIfEmpty(testCatalog, testOwner, time.Now())
	_, err := r.Mutate("M1", func(m *model.Machine) error {
		m.Pin = &model.Pin{Code: "555555"}
		return nil
	})
	require.NoError(t, err)

	m, _ := r.Get("M1")
	m.Pin.Code = "tampered"
	snap := r.Snapshot()
	snap.Machines[0].Pin.Code = "tampered"

	again, _ := r.Get("M1")
	assert.Equal(t, "555555", again.Pin.Code)
}

func TestRegistry_RestoreNormalizesAndOrders(t *testing.T) {
	r := NewRegistry()
	r.Restore(model.Snapshot{
		Machines: []model.Machine{
			{ID: "A", RentalStatus: model.RentalRented},
			{ID: "B", RentalStatus: model.RentalOwned, RentalSession: &model.RentalSession{BorrowerID: "b", Duration: 1, DurationUnit: model.UnitHours}},
			{ID: "A", Name: "duplicate"},
		},
		RunLogs: []model.RunLog{{ID: "newest"}, {ID: "older"}},
	})

	machines := r.List()
	require.Len(t, machines, 2)
	assert.Equal(t, model.RentalOwned, machines[0].RentalStatus)
	assert.Equal(t, model.RentalRented, machines[1].RentalStatus)
	assert.Empty(t, machines[0].Name)

	_, _, err := r.MutateWithLog("A", func(*model.Machine) (*model.RunLog, error) {
		return &model.RunLog{ID: "fresh", MachineID: "A"}, nil
	})
	require.NoError(t, err)

	logs := r.Snapshot().RunLogs
	require.Len(t, logs, 3)
	assert.Equal(t, []string{"fresh", "newest", "older"}, []string{logs[0].ID, logs[1].ID, logs[2].ID})
	assert.Greater(t, logs[0].Seq, logs[1].Seq)
	assert.Greater(t, logs[1].Seq, logs[2].Seq)
}
