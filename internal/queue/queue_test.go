package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xZoluGames/skinfetch/internal/engine"
)

func TestFromSummary(t *testing.T) {
	t.Parallel()

	finished := time.Unix(1700000000, 0).UTC()
	summary := engine.RunSummary{
		RunID:        "run-1",
		Profile:      "bulk",
		FinishedAt:   finished,
		TotalUnits:   1000,
		Succeeded:    990,
		Records:      98700,
		MergeNew:     700,
		MergeUpdated: 120,
		BestRegion:   "us",
	}

	notice := FromSummary(summary)
	assert.Equal(t, Notice{
		RunID:        "run-1",
		Profile:      "bulk",
		FinishedAt:   finished,
		TotalUnits:   1000,
		Succeeded:    990,
		Records:      98700,
		MergeNew:     700,
		MergeUpdated: 120,
		BestRegion:   "us",
	}, notice)
}

func TestMemoryProviderRecordsNotices(t *testing.T) {
	t.Parallel()

	var provider Provider = NewMemory()
	require.NoError(t, provider.Publish(context.Background(), Notice{RunID: "run-1"}))
	require.NoError(t, provider.Publish(context.Background(), Notice{RunID: "run-2"}))
	require.NoError(t, provider.Close())

	mem := provider.(*MemoryProvider)
	notices := mem.Notices()
	require.Len(t, notices, 2)
	assert.Equal(t, "run-1", notices[0].RunID)
	assert.Equal(t, "run-2", notices[1].RunID)

	notices[0].RunID = "mutated"
	assert.Equal(t, "run-1", mem.Notices()[0].RunID, "Notices returns a copy")
}

func TestNoOpProvider(t *testing.T) {
	t.Parallel()

	var provider Provider = NoOpProvider{}
	require.NoError(t, provider.Publish(context.Background(), Notice{RunID: "run-1"}))
	require.NoError(t, provider.Close())
}

func TestNewPubSubValidates(t *testing.T) {
	t.Parallel()

	_, err := NewPubSub(context.Background(), "", "runs-finished", nil)
	require.ErrorContains(t, err, "project and topic are required")

	_, err = NewPubSub(context.Background(), "my-project", "", nil)
	require.ErrorContains(t, err, "project and topic are required")
}
