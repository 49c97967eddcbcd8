package log

import (
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingFlusher struct {
	synced atomic.Int32
}

func (f *countingFlusher) Flush(sync bool) error {
	if sync {
		f.synced.Add(1)
	}
	return nil
}

func TestFsyncScheduler_StartStop(t *testing.T) {
	scheduler := NewFsyncScheduler(10 * time.Millisecond)

	scheduler.Start()
	scheduler.Start()
	time.Sleep(30 * time.Millisecond)
	scheduler.Stop()
	scheduler.Stop()
}

func TestFsyncScheduler_FlushesRegistered(t *testing.T) {
	scheduler := NewFsyncScheduler(5 * time.Millisecond)
	flusher := &countingFlusher{}
	scheduler.Register(flusher)

	scheduler.Start()
	defer scheduler.Stop()

	assert.Eventually(t, func() bool {
		return flusher.synced.Load() >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestFsyncScheduler_FinalFlushOnStop(t *testing.T) {
	scheduler := NewFsyncScheduler(time.Hour)
	flusher := &countingFlusher{}
	scheduler.Register(flusher)

	scheduler.Start()
	scheduler.Stop()

	assert.Equal(t, int32(1), flusher.synced.Load())
}

func TestFsyncScheduler_Unregister(t *testing.T) {
	scheduler := NewFsyncScheduler(time.Hour)
	flusher := &countingFlusher{}
	scheduler.Register(flusher)
	scheduler.Unregister(flusher)

	scheduler.Start()
	scheduler.Stop()

	assert.Equal(t, int32(0), flusher.synced.Load())
}

func TestFsyncScheduler_FlushesSegment(t *testing.T) {
	segment := newPersistedSegment(t, t.TempDir(), 0, testConfig())
	require.NoError(t, segment.AppendMessages(testMessages(0, 3)))

	scheduler := NewFsyncScheduler(5 * time.Millisecond)
	scheduler.Register(segment)
	scheduler.Start()
	defer scheduler.Stop()

	assert.Eventually(t, func() bool {
		stat, err := os.Stat(segment.LogPath())
		return err == nil && stat.Size() == int64(3*testRecordSize)
	}, time.Second, 5*time.Millisecond)
}
