package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mergetab/engine"
)

func TestSession_Build(t *testing.T) {
	tracker := NewTracker("", "")
	s := tracker.Start("src/app.go")
	s.IncrementClickAll()

	r := s.Build(engine.Summary{Total: 5, Resolved: 4, ConflictPoints: 2, AIResolved: 2, AIAnswersKept: 1})
	assert.Equal(t, s.ID(), r.SessionID)
	assert.Equal(t, "src/app.go", r.FilePath)
	assert.Equal(t, 2, r.ConflictPointNum)
	assert.Equal(t, 2, r.UseAIConflictPointNum)
	assert.Equal(t, 1, r.ReceiveNum)
	assert.Equal(t, 4, r.ResolvedNum)
	assert.Equal(t, 1, r.ClickAllNum)
	assert.GreaterOrEqual(t, r.DurationMs, int64(0))

	_, err := uuid.Parse(r.SessionID)
	assert.NoError(t, err)
}

func TestFinish_PostsOnce(t *testing.T) {
	reports := make(chan Report, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var rep Report
		require.NoError(t, json.NewDecoder(r.Body).Decode(&rep))
		reports <- rep
	}))
	defer server.Close()

	tracker := NewTracker(server.URL, "")
	s := tracker.Start("a.txt")
	s.Finish(engine.Summary{ConflictPoints: 3, Resolved: 3})
	s.Finish(engine.Summary{})
	tracker.Wait()

	require.Len(t, reports, 1)
	rep := <-reports
	assert.Equal(t, 3, rep.ConflictPointNum)
	assert.Equal(t, s.ID(), rep.SessionID)
}

func TestReport_JSONFieldNames(t *testing.T) {
	data, err := json.Marshal(Report{UseAIConflictPointNum: 1, ReceiveNum: 2})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"useAiConflictPointNum":1`)
	assert.Contains(t, string(data), `"receiveNum":2`)
}

func TestDeviceID_Persisted(t *testing.T) {
	dir := t.TempDir()
	first := loadOrCreateDeviceID(dir)
	second := loadOrCreateDeviceID(dir)
	assert.Equal(t, first, second)

	data, err := os.ReadFile(filepath.Join(dir, "device_id"))
	require.NoError(t, err)
	assert.Equal(t, first, string(data))
}
