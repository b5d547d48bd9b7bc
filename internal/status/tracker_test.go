package status

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/crewd/pkg/collab"
)

func TestTracker_TracksTransitions(t *testing.T) {
	tr := NewTracker()
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	tr.Notify(ctx, collab.Event{RunID: "r1", Domain: "auth", State: "developing", At: base})
	tr.Notify(ctx, collab.Event{RunID: "r1", Domain: "auth", State: "safety_check", At: base.Add(time.Minute)})
	tr.Notify(ctx, collab.Event{RunID: "r1", Domain: "payments", State: "developing", At: base.Add(2 * time.Minute)})

	snap, ok := tr.Snapshot("r1")
	require.True(t, ok)
	require.Len(t, snap.Domains, 2)

	// Sorted by domain; latest state wins.
	assert.Equal(t, "auth", snap.Domains[0].Domain)
	assert.Equal(t, "safety_check", snap.Domains[0].State)
	assert.Equal(t, "payments", snap.Domains[1].Domain)
	assert.Equal(t, base, snap.StartedAt)
	assert.Equal(t, base.Add(2*time.Minute), snap.UpdatedAt)
}

func TestTracker_EscalationReason(t *testing.T) {
	tr := NewTracker()
	tr.Notify(context.Background(), collab.Event{
		RunID:  "r1",
		Domain: "auth",
		State:  "escalated",
		Meta:   map[string]string{"reason": "upstream dependency escalated"},
	})

	snap, ok := tr.Snapshot("r1")
	require.True(t, ok)
	assert.Equal(t, "upstream dependency escalated", snap.Domains[0].Reason)
}

func TestTracker_UnknownRun(t *testing.T) {
	_, ok := NewTracker().Snapshot("missing")
	assert.False(t, ok)
}

func TestTracker_IgnoresAnonymousEvents(t *testing.T) {
	tr := NewTracker()
	tr.Notify(context.Background(), collab.Event{State: "developing"})
	assert.Empty(t, tr.Runs())
}

func TestTracker_RunsSorted(t *testing.T) {
	tr := NewTracker()
	tr.Notify(context.Background(), collab.Event{RunID: "zebra", Domain: "a", State: "done"})
	tr.Notify(context.Background(), collab.Event{RunID: "alpha", Domain: "a", State: "done"})

	assert.Equal(t, []string{"alpha", "zebra"}, tr.Runs())
}

func TestTracker_Forget(t *testing.T) {
	tr := NewTracker()
	tr.Notify(context.Background(), collab.Event{RunID: "r1", Domain: "a", State: "done"})
	tr.Forget("r1")

	_, ok := tr.Snapshot("r1")
	assert.False(t, ok)
}

func TestTracker_ConcurrentAccess(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.Notify(context.Background(), collab.Event{RunID: "r1", Domain: "auth", State: "qa", Attempt: j})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.Snapshot("r1")
				tr.Runs()
			}
		}()
	}
	wg.Wait()

	snap, ok := tr.Snapshot("r1")
	require.True(t, ok)
	assert.Equal(t, "qa", snap.Domains[0].State)
}
