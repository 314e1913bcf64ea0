package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DucuSandu/ha-snmp-r1d1/pkg/coordinator"
	"github.com/DucuSandu/ha-snmp-r1d1/pkg/transform"
)

func testStore(t *testing.T) *Store {
	t.Helper()

	store, err := New(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func testSnapshot(now time.Time) *coordinator.Snapshot {
	return &coordinator.Snapshot{
		Device:    "sw1",
		Version:   3,
		Timestamp: now,
		Entries: map[coordinator.Key]coordinator.Entry{
			{Name: "cpu_usage"}: {
				Kind:    transform.KindSensor,
				Outcome: transform.Outcome{Value: 12.5, State: transform.StateOK, Unit: "%"},
				Updated: now,
			},
			{Name: "traffic_in", Port: 1}: {
				Kind:    transform.KindSensor,
				Outcome: transform.Outcome{Value: 150.0, State: transform.StateOK, Unit: "Bps"},
				Updated: now,
			},
			// Stale entry carried over from an earlier cycle: not re-logged.
			{Name: "model"}: {
				Kind:    transform.KindText,
				Outcome: transform.Outcome{Value: "GS1920-24", State: transform.StateOK},
				Updated: now.Add(-time.Hour),
			},
		},
	}
}

func TestRecordAndQuery(t *testing.T) {
	store := testStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, store.Record("sw1", testSnapshot(now)))

	readings, err := store.Query(context.Background(), "sw1", "cpu_usage", time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, readings, 1)

	assert.Equal(t, "sw1", readings[0].Device)
	assert.Equal(t, "cpu_usage", readings[0].Entity)
	assert.Equal(t, "12.5", readings[0].Value)
	assert.Equal(t, "%", readings[0].Unit)
	assert.Equal(t, string(transform.StateOK), readings[0].State)

	// The carried-over entry was skipped.
	stale, err := store.Query(context.Background(), "sw1", "model", time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	assert.Empty(t, stale)

	// Port-scoped entities are addressed by their composite name.
	port, err := store.Query(context.Background(), "sw1", "port_1_traffic_in", time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	assert.Len(t, port, 1)
}

func TestQueryWindowAndLimit(t *testing.T) {
	store := testStore(t)
	base := time.Now().UTC().Truncate(time.Second).Add(-10 * time.Minute)

	for i := 0; i < 5; i++ {
		ts := base.Add(time.Duration(i) * time.Minute)
		snap := &coordinator.Snapshot{
			Device:    "sw1",
			Timestamp: ts,
			Entries: map[coordinator.Key]coordinator.Entry{
				{Name: "cpu_usage"}: {
					Kind:    transform.KindSensor,
					Outcome: transform.Outcome{Value: float64(i), State: transform.StateOK},
					Updated: ts,
				},
			},
		}
		require.NoError(t, store.Record("sw1", snap))
	}

	windowed, err := store.Query(context.Background(), "sw1", "cpu_usage",
		base.Add(time.Minute), base.Add(3*time.Minute), 0)
	require.NoError(t, err)
	assert.Len(t, windowed, 3)

	// Descending order, newest first.
	assert.Equal(t, "3", windowed[0].Value)

	limited, err := store.Query(context.Background(), "sw1", "cpu_usage", time.Time{}, time.Time{}, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
	assert.Equal(t, "4", limited[0].Value)
}

func TestPrune(t *testing.T) {
	store := testStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, store.Record("sw1", testSnapshot(now.Add(-48*time.Hour))))
	require.NoError(t, store.Record("sw1", testSnapshot(now)))

	pruned, err := store.Prune(context.Background(), now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), pruned)

	kept, err := store.Query(context.Background(), "sw1", "cpu_usage", time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	assert.Len(t, kept, 1)
}
