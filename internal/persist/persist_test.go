package persist

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evcal/internal/model"
)

func sampleEvents() []model.BaseEvent {
	end := model.NewDate(2024, time.March, 15)
	return []model.BaseEvent{
		{
			ID:          "event-1",
			Title:       "Gym",
			Description: "legs",
			Date:        model.NewDate(2024, time.March, 4),
			Time:        model.Clock{Hour: 7, Minute: 30},
			Color:       "#10b981",
			Recurrence: &model.RecurrenceRule{
				Kind:       model.KindCustom,
				Interval:   1,
				DaysOfWeek: []int{1, 3, 5},
				EndDate:    &end,
			},
		},
		{
			ID:    "event-2",
			Title: "Lunch",
			Date:  model.NewDate(2024, time.March, 6),
			Time:  model.Clock{Hour: 12},
			Color: "#f59e0b",
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	events := sampleEvents()
	data, err := Encode(events)
	require.NoError(t, err)

	back, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, events, back)
	assert.Nil(t, back[1].Recurrence)
}

func TestEncodeNil(t *testing.T) {
	data, err := Encode(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestDecodeOriginalBlob(t *testing.T) {
	blob := `[
	  {"id":"event-1710000000000","title":"Team sync","description":"","date":"2024-03-04","time":"09:00","color":"#3b82f6",
	   "recurrence":{"type":"weekly","interval":1,"daysOfWeek":[],"endDate":""}},
	  {"id":"event-1710000000001","title":"Call","description":"mom","date":"2024-03-05","time":"18:30","color":"#ec4899",
	   "recurrence":{"type":"none","interval":1,"daysOfWeek":[],"endDate":""}}
	]`
	events, err := Decode([]byte(blob))
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.NotNil(t, events[0].Recurrence)
	assert.Equal(t, model.KindWeekly, events[0].Recurrence.Kind)
	assert.Nil(t, events[0].Recurrence.EndDate)
	assert.Nil(t, events[1].Recurrence, "none rules are dropped")
}

func TestDecodeRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":     `{`,
		"not an array": `{"id":"a"}`,
		"bad date":     `[{"id":"a","date":"2024-13-01","time":"10:00"}]`,
		"bad time":     `[{"id":"a","date":"2024-01-01","time":"10am"}]`,
		"bad kind":     `[{"id":"a","date":"2024-01-01","time":"10:00","recurrence":{"type":"hourly"}}]`,
		"duplicate id": `[{"id":"a","date":"2024-01-01","time":"10:00"},{"id":"a","date":"2024-01-02","time":"10:00"}]`,
		"missing id":   `[{"date":"2024-01-01","time":"10:00"}]`,
	}
	for name, blob := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(blob))
			assert.Error(t, err)
		})
	}
}

func TestAdapterLoadAbsent(t *testing.T) {
	a := NewAdapter(NewMemoryStore(), "")
	assert.Equal(t, DefaultKey, a.Key)

	events, ok, err := a.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, events)
}

func TestAdapterSaveLoad(t *testing.T) {
	ctx := context.Background()
	stores := map[string]func(t *testing.T) BlobStore{
		"memory": func(t *testing.T) BlobStore { return NewMemoryStore() },
		"file":   func(t *testing.T) BlobStore { return NewFileStore(t.TempDir()) },
		"sqlite": func(t *testing.T) BlobStore {
			s, err := OpenSQLite(filepath.Join(t.TempDir(), "evcal.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			a := NewAdapter(open(t), "calendar-events")
			require.NoError(t, a.Save(ctx, sampleEvents()))

			events, ok, err := a.Load(ctx)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, sampleEvents(), events)

			require.NoError(t, a.Save(ctx, sampleEvents()[:1]))
			events, _, err = a.Load(ctx)
			require.NoError(t, err)
			assert.Len(t, events, 1, "save replaces the whole blob")
		})
	}
}

func TestAdapterLoadMalformed(t *testing.T) {
	ctx := context.Background()
	blobs := NewMemoryStore()
	require.NoError(t, blobs.Put(ctx, DefaultKey, []byte("garbage")))

	_, ok, err := NewAdapter(blobs, "").Load(ctx)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestFileStorePermissionsAndKeys(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fs := NewFileStore(dir)

	_, err := fs.Get(ctx, "calendar-events")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, fs.Put(ctx, "calendar-events", []byte("[]")))
	info, err := os.Stat(filepath.Join(dir, "calendar-events.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	assert.Error(t, fs.Put(ctx, "../escape", []byte("[]")))
}

func TestOpenStore(t *testing.T) {
	_, closer, err := OpenStore(DriverMemory, "")
	require.NoError(t, err)
	assert.NoError(t, closer.Close())

	_, _, err = OpenStore("redis", "")
	assert.Error(t, err)
}
