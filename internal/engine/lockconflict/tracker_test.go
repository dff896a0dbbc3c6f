package lockconflict_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arbplane/arbplane/internal/engine/lockconflict"
)

func TestTracker_StaleAfterFourConflictsInBurstWindow(t *testing.T) {
	tr := lockconflict.New()
	base := time.Unix(0, 0)

	require.False(t, tr.RecordConflict("opp-1", base))
	require.False(t, tr.RecordConflict("opp-1", base.Add(8*time.Second)))
	require.False(t, tr.RecordConflict("opp-1", base.Add(16*time.Second)))
	require.True(t, tr.RecordConflict("opp-1", base.Add(24*time.Second)))

	conflicts, recoveries := tr.Counters()
	require.Equal(t, int64(4), conflicts)
	require.Equal(t, int64(0), recoveries)

	tr.RecordStaleRecovery("opp-1")
	_, recoveries = tr.Counters()
	require.Equal(t, int64(1), recoveries)
}

func TestTracker_NotStaleBeforeWindow(t *testing.T) {
	tr := lockconflict.New()
	base := time.Unix(0, 0)

	require.False(t, tr.RecordConflict("opp-2", base))
	require.False(t, tr.RecordConflict("opp-2", base.Add(1*time.Second)))
	require.False(t, tr.RecordConflict("opp-2", base.Add(2*time.Second)))
	// Four conflicts but well under the 20s age floor.
	require.False(t, tr.RecordConflict("opp-2", base.Add(3*time.Second)))
}

func TestTracker_NotStaleAfterWindow(t *testing.T) {
	tr := lockconflict.New()
	base := time.Unix(0, 0)

	require.False(t, tr.RecordConflict("opp-3", base))
	require.False(t, tr.RecordConflict("opp-3", base.Add(1*time.Second)))
	require.False(t, tr.RecordConflict("opp-3", base.Add(2*time.Second)))
	// Age 40s exceeds the 30s burst-window ceiling.
	require.False(t, tr.RecordConflict("opp-3", base.Add(40*time.Second)))
}

func TestTracker_AcquiredClearsRecord(t *testing.T) {
	tr := lockconflict.New()
	base := time.Unix(0, 0)
	tr.RecordConflict("opp-4", base)
	tr.RecordAcquired("opp-4")
	// History reset: same sequence as a fresh contention run.
	require.False(t, tr.RecordConflict("opp-4", base.Add(100*time.Millisecond)))
}

func TestTracker_SweepEvictsOldRecords(t *testing.T) {
	tr := lockconflict.New()
	base := time.Unix(0, 0)
	tr.RecordConflict("opp-5", base)

	tr.Sweep(base.Add(61 * time.Second))
	// Record evicted; a new conflict starts a fresh window.
	require.False(t, tr.RecordConflict("opp-5", base.Add(61*time.Second)))
}
