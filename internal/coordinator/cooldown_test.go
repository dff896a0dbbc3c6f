package coordinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCooldownManager_SuppressesWithinWindow(t *testing.T) {
	cm := NewCooldownManager(5*time.Minute, time.Hour, 1000)
	now := time.Now()

	require.True(t, cm.ShouldFire("alert_system", now))
	require.False(t, cm.ShouldFire("alert_system", now.Add(time.Minute)))
	require.True(t, cm.ShouldFire("alert_system", now.Add(6*time.Minute)))
}

func TestCooldownManager_ClearRemovesRecord(t *testing.T) {
	cm := NewCooldownManager(5*time.Minute, time.Hour, 1000)
	now := time.Now()

	require.True(t, cm.ShouldFire("alert_system", now))
	require.True(t, cm.Clear("alert_system"))
	require.True(t, cm.ShouldFire("alert_system", now.Add(time.Second)))
}

func TestCooldownManager_ClearIsNoOpOnDelegatedStore(t *testing.T) {
	store := newMapStore()
	cm := NewDelegatedCooldownManager(store, 5*time.Minute, time.Hour)
	now := time.Now()

	require.True(t, cm.ShouldFire("alert_system", now))
	require.False(t, cm.Clear("alert_system"))
}

func TestCooldownManager_CleanupEvictsOldRecords(t *testing.T) {
	cm := NewCooldownManager(time.Minute, time.Minute, 1000)
	now := time.Now()

	cm.ShouldFire("alert_system", now)
	cm.Cleanup(now.Add(2 * time.Minute))

	require.True(t, cm.ShouldFire("alert_system", now.Add(2*time.Minute)))
}
