package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dnodevkis/tg-news-bot/internal/models"
)

type memoryInserter struct {
	mu      sync.Mutex
	reports map[string]models.RawReport
}

func (m *memoryInserter) Insert(_ context.Context, reports []models.RawReport) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reports == nil {
		m.reports = map[string]models.RawReport{}
	}
	n := 0
	for _, r := range reports {
		if _, ok := m.reports[r.ID]; ok {
			continue
		}
		m.reports[r.ID] = r
		n++
	}
	return n, nil
}

func (m *memoryInserter) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reports)
}

const dropFile = `[
  {"id": 101, "groupId": "g1", "eventDate": "2024-05-01T10:00:00", "report": "<p>Кот <b>нашёлся</b></p><p>во дворе</p>", "isPosted": null},
  {"id": "102", "groupId": "g1", "eventDate": "2024-05-01T11:30:00+03:00", "report": "  plain text  "},
  {"id": "103", "groupId": "g2", "eventDate": "yesterday", "report": "bad date"},
  {"groupId": "g2", "eventDate": "2024-05-01", "report": "no id"}
]`

func TestDecode(t *testing.T) {
	reports, skipped, err := Decode([]byte(dropFile), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 2, skipped)
	require.Len(t, reports, 2)

	assert.Equal(t, "101", reports[0].ID)
	assert.Equal(t, "Кот нашёлся\nво дворе", reports[0].Report)
	assert.True(t, reports[0].EventDate.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)))
	assert.Nil(t, reports[0].IsPosted)

	assert.Equal(t, "102", reports[1].ID)
	assert.Equal(t, "plain text", reports[1].Report)
	assert.True(t, reports[1].EventDate.Equal(time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)))
}

func TestDecode_NotAList(t *testing.T) {
	_, _, err := Decode([]byte(`{"id": 1}`), time.UTC)
	assert.ErrorIs(t, err, ErrNotAList)
}

func TestCleanBody(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"просто текст", "просто текст"},
		{"line one<br>line two", "line one\nline two"},
		{"<div>a &amp; b</div><script>alert(1)</script>", "a & b"},
		{"<ul><li>one</li><li>two</li></ul>", "one\ntwo"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanBody(tt.in), tt.in)
	}
}

func TestSweep_ImportsAndDeletes(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "batch1.json"), []byte(dropFile), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte(`{"oops"`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	repo := &memoryInserter{}
	ing := New(repo, Config{Dir: dir}, zaptest.NewLogger(t))

	n, err := ing.Sweep(context.Background(), dir)
	assert.Error(t, err)
	assert.Equal(t, 2, n)

	_, statErr := os.Stat(filepath.Join(dir, "batch1.json"))
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(filepath.Join(dir, "broken.json"))
	assert.NoError(t, statErr)
	_, statErr = os.Stat(filepath.Join(dir, "notes.txt"))
	assert.NoError(t, statErr)

	// Re-importing the same records inserts nothing.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "batch2.json"), []byte(dropFile), 0o644))
	n, err = ing.ImportFile(context.Background(), filepath.Join(dir, "batch2.json"))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRun_PicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	repo := &memoryInserter{}
	ing := New(repo, Config{Dir: dir, SweepInterval: time.Hour, Settle: 50 * time.Millisecond}, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ing.Run(ctx) }()

	path := filepath.Join(dir, "drop.json")
	assert.Eventually(t, func() bool {
		if _, err := os.Stat(path); os.IsNotExist(err) && repo.len() == 0 {
			_ = os.WriteFile(path, []byte(dropFile), 0o644)
		}
		return repo.len() == 2
	}, 5*time.Second, 50*time.Millisecond)

	assert.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return os.IsNotExist(err)
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
