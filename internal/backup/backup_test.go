package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evcal/internal/model"
	"evcal/internal/persist"
)

type staticSource []model.BaseEvent

func (s staticSource) Events() []model.BaseEvent { return s }

func TestSnapshotWritesAndPrunes(t *testing.T) {
	dir := t.TempDir()
	src := staticSource{{ID: "a", Title: "A", Date: model.NewDate(2024, time.May, 1), Time: model.Clock{Hour: 10}}}
	snap := NewSnapshotter(src, dir, 2)

	clock := time.Date(2024, time.May, 1, 3, 0, 0, 0, time.UTC)
	snap.now = func() time.Time { return clock }

	var written []string
	for i := 0; i < 3; i++ {
		path, err := snap.Snapshot()
		require.NoError(t, err)
		written = append(written, path)
		clock = clock.Add(24 * time.Hour)
	}

	paths, err := snap.List()
	require.NoError(t, err)
	assert.Equal(t, written[1:], paths)
	assert.Equal(t, "events-20240502-030000.json", filepath.Base(paths[0]))

	data, err := os.ReadFile(paths[1])
	require.NoError(t, err)
	events, err := persist.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, []model.BaseEvent(src), events)
}

func TestListIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))
	snap := NewSnapshotter(staticSource{}, dir, 5)

	paths, err := snap.List()
	require.NoError(t, err)
	assert.Empty(t, paths)

	missing := NewSnapshotter(staticSource{}, filepath.Join(dir, "nope"), 5)
	paths, err = missing.List()
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	_, err := Start("every tuesday", NewSnapshotter(staticSource{}, t.TempDir(), 1))
	assert.Error(t, err)
}

func TestStartStop(t *testing.T) {
	s, err := Start("0 3 * * *", NewSnapshotter(staticSource{}, t.TempDir(), 1))
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
