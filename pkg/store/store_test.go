package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobilityedgeai/chatplanilha/pkg/dataset"
	"github.com/mobilityedgeai/chatplanilha/pkg/errors"
	"github.com/mobilityedgeai/chatplanilha/pkg/models"
	"github.com/mobilityedgeai/chatplanilha/pkg/schema"
)

type nopLogger struct{}

func (nopLogger) Debug(msg string, kv ...interface{}) {}
func (nopLogger) Info(msg string, kv ...interface{})  {}
func (nopLogger) Warn(msg string, kv ...interface{})  {}
func (nopLogger) Error(msg string, kv ...interface{}) {}

func datasetWithRows(t *testing.T, n int) *dataset.Dataset {
	t.Helper()
	rows := make([][]string, n)
	for i := range rows {
		rows[i] = []string{fmt.Sprintf("driver-%d", i%3)}
	}
	ds, err := schema.Infer([]string{"driver"}, rows, schema.DefaultOptions())
	require.NoError(t, err)
	return ds
}

func TestStore_LoadAtCeiling(t *testing.T) {
	st := New(5, 0, nopLogger{})
	defer st.Close()

	sess, err := st.Load("s1", datasetWithRows(t, 5), "profile")
	require.NoError(t, err)
	assert.Equal(t, "s1", sess.ID)
	assert.Equal(t, 5, sess.Dataset().RowCount())
	assert.Equal(t, "profile", sess.Profile())
}

func TestStore_LoadOverCeiling(t *testing.T) {
	st := New(5, 0, nopLogger{})
	defer st.Close()

	_, err := st.Load("s1", datasetWithRows(t, 6), "")
	require.Error(t, err)
	assert.True(t, errors.IsCapacityExceeded(err))

	_, err = st.Get("s1")
	assert.True(t, errors.IsNotFound(err), "rejected dataset must not be partially stored")
}

func TestStore_GetUnknown(t *testing.T) {
	st := New(100, 0, nopLogger{})
	defer st.Close()

	_, err := st.Get("missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestStore_LoadReplacesExistingSession(t *testing.T) {
	st := New(100, 0, nopLogger{})
	defer st.Close()

	first, err := st.Load("s1", datasetWithRows(t, 3), "")
	require.NoError(t, err)
	_, err = st.Load("s1", datasetWithRows(t, 4), "")
	require.NoError(t, err)

	assert.Nil(t, first.Dataset(), "replaced session must be released")
	sess, err := st.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, 4, sess.Dataset().RowCount())
	assert.Equal(t, 1, st.Len())
}

func TestStore_EvictIdempotent(t *testing.T) {
	st := New(100, 0, nopLogger{})
	defer st.Close()

	sess, err := st.Load("s1", datasetWithRows(t, 3), "")
	require.NoError(t, err)

	st.Evict("s1")
	st.Evict("s1")
	st.Evict("never-existed")

	assert.Nil(t, sess.Dataset())
	_, err = st.Get("s1")
	assert.True(t, errors.IsNotFound(err))
	assert.Equal(t, 0, st.Len())
}

func TestStore_EvictKeepsPinnedDatasetReadable(t *testing.T) {
	st := New(100, 0, nopLogger{})
	defer st.Close()

	sess, err := st.Load("s1", datasetWithRows(t, 6), "")
	require.NoError(t, err)

	ds := sess.AcquireDataset()
	require.NotNil(t, ds)

	st.Evict("s1")
	assert.True(t, sess.Evicted())
	assert.Nil(t, sess.AcquireDataset(), "evicted session must not hand out new pins")

	// The pin held across the eviction keeps every column readable.
	assert.Equal(t, 6, ds.RowCount())
	assert.Equal(t, "driver-0", ds.Value(0, 0))
	assert.Equal(t, "driver-2", ds.Value(5, 0))
	ds.Release()
}

func TestStore_ReplaceKeepsPinnedDatasetReadable(t *testing.T) {
	st := New(100, 0, nopLogger{})
	defer st.Close()

	first, err := st.Load("s1", datasetWithRows(t, 3), "")
	require.NoError(t, err)
	ds := first.AcquireDataset()
	require.NotNil(t, ds)

	_, err = st.Load("s1", datasetWithRows(t, 4), "")
	require.NoError(t, err)

	assert.Equal(t, 3, ds.RowCount())
	assert.Equal(t, "driver-1", ds.Value(1, 0))
	ds.Release()
}

func TestStore_SessionIsolation(t *testing.T) {
	st := New(100, 0, nopLogger{})
	defer st.Close()

	s1, err := st.Load("s1", datasetWithRows(t, 3), "")
	require.NoError(t, err)
	s2, err := st.Load("s2", datasetWithRows(t, 3), "")
	require.NoError(t, err)

	s1.AppendHistory(models.HistoryEntry{Question: "q1"})
	st.Evict("s2")

	assert.Len(t, s1.History(), 1)
	assert.NotNil(t, s1.Dataset())
	assert.Nil(t, s2.Dataset())
}

func TestStore_HistoryAppendOnly(t *testing.T) {
	st := New(100, 0, nopLogger{})
	defer st.Close()

	sess, err := st.Load("s1", datasetWithRows(t, 3), "")
	require.NoError(t, err)

	sess.AppendHistory(models.HistoryEntry{Question: "first"})
	sess.AppendHistory(models.HistoryEntry{Question: "second", Answer: models.Answer{Failed: true}})

	hist := sess.History()
	require.Len(t, hist, 2)
	assert.Equal(t, "first", hist[0].Question)
	assert.True(t, hist[1].Answer.Failed, "failed asks stay in history")

	// Mutating the returned copy must not touch the session.
	hist[0].Question = "tampered"
	assert.Equal(t, "first", sess.History()[0].Question)
}

func TestStore_IdleEviction(t *testing.T) {
	st := New(100, time.Minute, nopLogger{})
	defer st.Close()

	sess, err := st.Load("s1", datasetWithRows(t, 3), "")
	require.NoError(t, err)

	sess.mu.Lock()
	sess.lastActive = time.Now().Add(-2 * time.Minute)
	sess.mu.Unlock()

	st.evictIdle()

	_, err = st.Get("s1")
	assert.True(t, errors.IsNotFound(err))
}

func TestStore_GetRefreshesIdleClock(t *testing.T) {
	st := New(100, time.Minute, nopLogger{})
	defer st.Close()

	sess, err := st.Load("s1", datasetWithRows(t, 3), "")
	require.NoError(t, err)

	sess.mu.Lock()
	sess.lastActive = time.Now().Add(-2 * time.Minute)
	sess.mu.Unlock()

	_, err = st.Get("s1")
	require.NoError(t, err)

	st.evictIdle()
	_, err = st.Get("s1")
	assert.NoError(t, err, "recently touched session must survive eviction")
}

func TestStore_TotalRows(t *testing.T) {
	st := New(100, 0, nopLogger{})
	defer st.Close()

	_, err := st.Load("s1", datasetWithRows(t, 3), "")
	require.NoError(t, err)
	_, err = st.Load("s2", datasetWithRows(t, 4), "")
	require.NoError(t, err)

	assert.Equal(t, 7, st.TotalRows())
}
