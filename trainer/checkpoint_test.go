package trainer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointRoundTrip(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	tr, err := New(cfg, buildAgents(t, cfg), &memJournal{})
	require.NoError(t, err)
	_, err = tr.Run(context.Background())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "checkpoint.json")
	require.NoError(t, SaveCheckpoint(path, tr))

	cp, err := LoadCheckpoint(path)
	require.NoError(t, err)
	assert.Equal(t, tr.RunID(), cp.RunID)
	assert.Equal(t, 3, cp.Generation)
	require.Len(t, cp.States, cfg.Run.NumAgents)

	restored := cp.Agents()
	require.Len(t, restored, len(tr.Agents()))
	for i, a := range tr.Agents() {
		assert.Equal(t, a.Snapshot(), restored[i].Snapshot(),
			"restored state must match the trained state exactly")
	}
}

func TestLoadCheckpointErrors(t *testing.T) {
	t.Parallel()

	_, err := LoadCheckpoint(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
