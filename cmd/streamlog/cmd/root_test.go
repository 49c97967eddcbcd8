package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/flowmesh/streamlog/internal/config"
	"github.com/flowmesh/streamlog/internal/storage/log"
	"github.com/flowmesh/streamlog/internal/storage/metastore"
	"github.com/flowmesh/streamlog/internal/storage/streams"
)

// run executes the CLI against dataDir and returns its stdout
func run(t *testing.T, dataDir string, args ...string) (string, error) {
	t.Helper()

	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--data-dir", dataDir, "--log-level", "error"}, args...))

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, dataDir string, args ...string) string {
	t.Helper()
	out, err := run(t, dataDir, args...)
	require.NoError(t, err, "streamlog %s", strings.Join(args, " "))
	return out
}

func TestStreamCreateAndList(t *testing.T) {
	dataDir := t.TempDir()

	out := mustRun(t, dataDir, "stream", "create", "1", "orders")
	assert.Contains(t, out, "Stream 1 (orders) created")
	mustRun(t, dataDir, "stream", "create", "2", "payments")

	out = mustRun(t, dataDir, "stream", "list", "-o", "json")
	var list []metastore.Stream
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "orders", list[0].Name)
	assert.Equal(t, "payments", list[1].Name)

	out = mustRun(t, dataDir, "stream", "list")
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "payments")
}

func TestStreamCreate_Duplicate(t *testing.T) {
	dataDir := t.TempDir()
	mustRun(t, dataDir, "stream", "create", "1", "orders")

	_, err := run(t, dataDir, "stream", "create", "1", "orders")
	require.Error(t, err)
	var exists metastore.ResourceExistsError
	assert.ErrorAs(t, err, &exists)
}

func TestTopicCreateAndList(t *testing.T) {
	dataDir := t.TempDir()
	mustRun(t, dataDir, "stream", "create", "1", "orders")

	out := mustRun(t, dataDir, "topic", "create", "1", "1", "created", "--partitions", "3")
	assert.Contains(t, out, "with 3 partitions")

	for p := 1; p <= 3; p++ {
		dir := filepath.Join(dataDir, "streams", "1", "topics", "1", "partitions", strconv.Itoa(p))
		assert.DirExists(t, dir)
	}

	out = mustRun(t, dataDir, "topic", "list", "1", "-o", "yaml")
	var list []metastore.Topic
	require.NoError(t, yaml.Unmarshal([]byte(out), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "created", list[0].Name)
}

func TestTopicList_UnknownStream(t *testing.T) {
	_, err := run(t, t.TempDir(), "topic", "list", "9")
	var notFound metastore.StreamNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestProduceAndConsume(t *testing.T) {
	dataDir := t.TempDir()
	mustRun(t, dataDir, "stream", "create", "1", "orders")
	mustRun(t, dataDir, "topic", "create", "1", "1", "created")

	out := mustRun(t, dataDir, "produce", "1", "1", "1", "-m", "first", "-m", "second", "-H", "source=test")
	assert.Contains(t, out, "Appended 2 messages to 1/1/1 (offsets 0-1)")

	file := filepath.Join(t.TempDir(), "messages.txt")
	require.NoError(t, os.WriteFile(file, []byte("third\n\nfourth\n"), 0644))
	out = mustRun(t, dataDir, "produce", "1", "1", "1", "-f", file)
	assert.Contains(t, out, "(offsets 2-3)")

	out = mustRun(t, dataDir, "consume", "1", "1", "1", "--offset", "1", "--count", "10", "-o", "json")
	var messages []messageView
	require.NoError(t, json.Unmarshal([]byte(out), &messages))
	require.Len(t, messages, 3)
	assert.Equal(t, uint64(1), messages[0].Offset)
	assert.Equal(t, "second", messages[0].Payload)
	assert.Equal(t, map[string]string{"source": "test"}, messages[0].Headers)
	assert.Equal(t, "fourth", messages[2].Payload)
	assert.Empty(t, messages[2].Headers)

	out = mustRun(t, dataDir, "consume", "1", "1", "1", "--count", "1")
	assert.Contains(t, out, "OFFSET")
	assert.Contains(t, out, "first")
	assert.Contains(t, out, "source=test")
	assert.NotContains(t, out, "second")
}

func TestProduceFromStdin(t *testing.T) {
	dataDir := t.TempDir()
	mustRun(t, dataDir, "stream", "create", "1", "orders")
	mustRun(t, dataDir, "topic", "create", "1", "1", "created")

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader("a\nb\nc\n"))
	root.SetArgs([]string{"--data-dir", dataDir, "--log-level", "error", "produce", "1", "1", "1", "-f", "-"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "Appended 3 messages")
}

func TestProduce_Errors(t *testing.T) {
	dataDir := t.TempDir()

	_, err := run(t, dataDir, "produce", "1", "1", "1")
	assert.ErrorContains(t, err, "no messages to produce")

	_, err = run(t, dataDir, "produce", "0", "1", "1", "-m", "x")
	assert.ErrorContains(t, err, "must be greater than zero")

	_, err = run(t, dataDir, "produce", "1", "1", "1", "-m", "x", "-H", "novalue")
	assert.ErrorContains(t, err, "expected key=value")

	_, err = run(t, dataDir, "produce", "1", "1", "1", "-m", "x")
	assert.Error(t, err, "partition does not exist")
}

func TestConsume_ByTimestamp(t *testing.T) {
	dataDir := t.TempDir()
	mustRun(t, dataDir, "stream", "create", "1", "orders")
	mustRun(t, dataDir, "topic", "create", "1", "1", "created")
	mustRun(t, dataDir, "produce", "1", "1", "1", "-m", "a", "-m", "b")

	out := mustRun(t, dataDir, "consume", "1", "1", "1", "--timestamp", "2000-01-01T00:00:00Z", "-o", "json")
	var messages []messageView
	require.NoError(t, json.Unmarshal([]byte(out), &messages))
	require.Len(t, messages, 2)
	assert.Equal(t, "a", messages[0].Payload)

	_, err := run(t, dataDir, "consume", "1", "1", "1", "--timestamp", "yesterday")
	assert.ErrorContains(t, err, "invalid timestamp")
}

func TestSegmentInspect(t *testing.T) {
	dataDir := t.TempDir()
	mustRun(t, dataDir, "stream", "create", "1", "orders")
	mustRun(t, dataDir, "topic", "create", "1", "1", "created")
	mustRun(t, dataDir, "produce", "1", "1", "1", "-m", "a", "-m", "b", "-m", "c")

	out := mustRun(t, dataDir, "segment", "inspect", "1", "1", "1", "-o", "yaml")
	var segments []segmentView
	require.NoError(t, yaml.Unmarshal([]byte(out), &segments))
	require.Len(t, segments, 1)
	assert.Equal(t, uint64(0), segments[0].StartOffset)
	assert.Equal(t, uint64(2), segments[0].CurrentOffset)
	assert.Equal(t, uint64(3), segments[0].Messages)
	assert.False(t, segments[0].Sealed)
	assert.True(t, strings.HasSuffix(segments[0].LogPath, "00000000000000000000.log"))
}

func TestSegmentInspect_Rotation(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("STREAMLOG_STORAGE_SEGMENT_SIZE", "1")

	mustRun(t, dataDir, "stream", "create", "1", "orders")
	mustRun(t, dataDir, "topic", "create", "1", "1", "created")
	mustRun(t, dataDir, "produce", "1", "1", "1", "-m", "a", "-m", "b")
	mustRun(t, dataDir, "produce", "1", "1", "1", "-m", "c")

	out := mustRun(t, dataDir, "segment", "inspect", "1", "1", "1", "-o", "json")
	var segments []segmentView
	require.NoError(t, json.Unmarshal([]byte(out), &segments))
	require.Len(t, segments, 2)
	assert.True(t, segments[0].Sealed)
	assert.Equal(t, uint64(1), segments[0].EndOffset)
	assert.Equal(t, uint64(2), segments[1].StartOffset)
}

func TestInvalidOutputFormat(t *testing.T) {
	_, err := run(t, t.TempDir(), "stream", "list", "-o", "xml")
	assert.ErrorContains(t, err, "unknown output format")
}

func TestVersion(t *testing.T) {
	out := mustRun(t, t.TempDir(), "version")
	assert.Contains(t, out, "streamlog version")

	out = mustRun(t, t.TempDir(), "version", "-o", "json")
	assert.Contains(t, out, `"go_version"`)
}

func TestParseHeaders(t *testing.T) {
	tests := []struct {
		name    string
		values  []string
		want    map[string]string
		wantErr bool
	}{
		{name: "none", values: nil, want: nil},
		{name: "single", values: []string{"a=1"}, want: map[string]string{"a": "1"}},
		{name: "empty value", values: []string{"a="}, want: map[string]string{"a": ""}},
		{name: "value with equals", values: []string{"q=x=y"}, want: map[string]string{"q": "x=y"}},
		{name: "missing separator", values: []string{"a"}, wantErr: true},
		{name: "empty key", values: []string{"=1"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseHeaders(tt.values)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunServe_ShutsDownOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.DataDir = t.TempDir()
	cfg.Metrics.Enabled = false

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, runServe(ctx, &options{cfg: cfg}))
	assert.DirExists(t, filepath.Join(cfg.Storage.DataDir, "streams"))
	assert.DirExists(t, filepath.Join(cfg.Storage.DataDir, "metadata"))
}

type fakeReader struct {
	timestampOffset uint64
	gotOffset       uint64
	gotTimestamp    uint64
}

func (f *fakeReader) GetMessages(_ streams.PartitionKey, offset uint64, count uint32) ([]*log.Message, error) {
	f.gotOffset = offset
	return make([]*log.Message, count), nil
}

func (f *fakeReader) GetOffsetByTimestamp(_ streams.PartitionKey, timestamp uint64) (uint64, error) {
	f.gotTimestamp = timestamp
	return f.timestampOffset, nil
}

func TestReadMessages_ResolvesTimestamp(t *testing.T) {
	key := streams.PartitionKey{StreamID: 1, TopicID: 1, PartitionID: 1}

	reader := &fakeReader{timestampOffset: 42}
	msgs, err := readMessages(reader, key, 7, nil, 3)
	require.NoError(t, err)
	assert.Len(t, msgs, 3)
	assert.Equal(t, uint64(7), reader.gotOffset)
	assert.Zero(t, reader.gotTimestamp)

	since := time.UnixMicro(1_700_000_000_000_000)
	_, err = readMessages(reader, key, 7, &since, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), reader.gotOffset)
	assert.Equal(t, uint64(1_700_000_000_000_000), reader.gotTimestamp)
}
