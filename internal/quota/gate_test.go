package quota

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memLedger struct {
	st    State
	saves int
}

func (m *memLedger) Load() (State, error) { return m.st, nil }

func (m *memLedger) Save(st State) error {
	m.st = st
	m.saves++
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestGate_RecordAndRemaining(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 11, 20, 12, 0, 0, 0, time.UTC)
	gate := NewGate(&memLedger{}, WithClock(fixedClock(now)))

	for i := 0; i < 5; i++ {
		require.NoError(t, gate.Record(CostVideoInsert))
	}

	remaining, err := gate.Remaining()
	require.NoError(t, err)
	assert.Equal(t, 1200, remaining)

	ok, err := gate.CanAdmit(CostVideoInsert)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = gate.CanAdmit(CostVideoUpdate)
	require.NoError(t, err)
	assert.True(t, ok)

	uploads, err := gate.RemainingUploads()
	require.NoError(t, err)
	assert.Equal(t, 0, uploads)
}

func TestGate_ResetsWhenDateAdvances(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 11, 20, 12, 0, 0, 0, time.UTC)
	yesterday := now.In(resetZone).AddDate(0, 0, -1).Format(civilDateLayout)

	ledger := &memLedger{st: State{UsedUnits: 9999, ResetDate: yesterday}}
	gate := NewGate(ledger, WithClock(fixedClock(now)))

	remaining, err := gate.Remaining()
	require.NoError(t, err)
	assert.Equal(t, DefaultDailyLimit, remaining)

	// The rollover is persisted, not just computed.
	assert.Equal(t, 0, ledger.st.UsedUnits)
	assert.Equal(t, now.In(resetZone).Format(civilDateLayout), ledger.st.ResetDate)
}

func TestGate_SamePeriodDoesNotReset(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 11, 20, 12, 0, 0, 0, time.UTC)
	today := now.In(resetZone).Format(civilDateLayout)

	ledger := &memLedger{st: State{UsedUnits: 3200, ResetDate: today}}
	gate := NewGate(ledger, WithClock(fixedClock(now)))

	remaining, err := gate.Remaining()
	require.NoError(t, err)
	assert.Equal(t, DefaultDailyLimit-3200, remaining)
	assert.Zero(t, ledger.saves)
}

func TestGate_RecordPersistsImmediately(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 11, 20, 12, 0, 0, 0, time.UTC)
	today := now.In(resetZone).Format(civilDateLayout)

	ledger := &memLedger{st: State{UsedUnits: 0, ResetDate: today}}
	gate := NewGate(ledger, WithClock(fixedClock(now)))

	require.NoError(t, gate.Record(CostVideoInsert))
	assert.Equal(t, 1, ledger.saves)
	assert.Equal(t, CostVideoInsert, ledger.st.UsedUnits)
}

func TestGate_WithDailyLimit(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 11, 20, 12, 0, 0, 0, time.UTC)
	gate := NewGate(&memLedger{}, WithClock(fixedClock(now)), WithDailyLimit(2000))

	require.NoError(t, gate.Record(CostVideoInsert))

	ok, err := gate.CanAdmit(CostVideoInsert)
	require.NoError(t, err)
	assert.False(t, ok)

	remaining, err := gate.Remaining()
	require.NoError(t, err)
	assert.Equal(t, 400, remaining)
}

func TestFileLedger_RoundTripAndMissingFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state", "quota.json")
	ledger := NewFileLedger(path)

	st, err := ledger.Load()
	require.NoError(t, err)
	assert.Equal(t, State{}, st)

	require.NoError(t, ledger.Save(State{UsedUnits: 4800, ResetDate: "2025-11-20"}))

	back, err := ledger.Load()
	require.NoError(t, err)
	assert.Equal(t, State{UsedUnits: 4800, ResetDate: "2025-11-20"}, back)
}

func TestFileLedger_SaveReplacesAtomically(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "quota.json")
	ledger := NewFileLedger(path)

	require.NoError(t, ledger.Save(State{UsedUnits: 1600, ResetDate: "2025-11-20"}))
	require.NoError(t, ledger.Save(State{UsedUnits: 3200, ResetDate: "2025-11-20"}))

	back, err := ledger.Load()
	require.NoError(t, err)
	assert.Equal(t, State{UsedUnits: 3200, ResetDate: "2025-11-20"}, back)

	// Only the renamed state file remains; no temp files survive.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "quota.json", entries[0].Name())
}

func TestFileLedger_CorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "quota.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFileLedger(path).Load()
	require.Error(t, err)
}
