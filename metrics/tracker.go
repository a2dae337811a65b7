package metrics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"mergetab/engine"
	"mergetab/logger"
)

// Report is sent once per merge session when the result is applied
type Report struct {
	SessionID             string `json:"sessionId"`
	DeviceID              string `json:"deviceId"`
	FilePath              string `json:"filePath"`
	ConflictPointNum      int    `json:"conflictPointNum"`
	UseAIConflictPointNum int    `json:"useAiConflictPointNum"`
	ReceiveNum            int    `json:"receiveNum"`
	ResolvedNum           int    `json:"resolvedNum"`
	ClickAllNum           int    `json:"clickAllNum"`
	DurationMs            int64  `json:"durationMs"`
}

// Tracker posts session reports to url. With no url reports are only logged.
type Tracker struct {
	url        string
	deviceID   string
	httpClient *http.Client
	wg         sync.WaitGroup
}

func NewTracker(url, dataDir string) *Tracker {
	return &Tracker{
		url:        url,
		deviceID:   loadOrCreateDeviceID(dataDir),
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Session accumulates the counters of one merge session
type Session struct {
	tracker  *Tracker
	id       string
	filePath string
	started  time.Time

	mu          sync.Mutex
	clickAllNum int
	reported    bool
}

// Start opens a session for filePath
func (t *Tracker) Start(filePath string) *Session {
	return &Session{
		tracker:  t,
		id:       uuid.NewString(),
		filePath: filePath,
		started:  time.Now(),
	}
}

func (s *Session) ID() string { return s.id }

// IncrementClickAll counts a resolve-all-with-AI request
func (s *Session) IncrementClickAll() {
	s.mu.Lock()
	s.clickAllNum++
	s.mu.Unlock()
}

// Build turns the final summary into a report
func (s *Session) Build(summary engine.Summary) *Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Report{
		SessionID:             s.id,
		DeviceID:              s.tracker.deviceID,
		FilePath:              s.filePath,
		ConflictPointNum:      summary.ConflictPoints,
		UseAIConflictPointNum: summary.AIResolved,
		ReceiveNum:            summary.AIAnswersKept,
		ResolvedNum:           summary.Resolved,
		ClickAllNum:           s.clickAllNum,
		DurationMs:            time.Since(s.started).Milliseconds(),
	}
}

// Finish reports the session once. Later calls are no-ops.
func (s *Session) Finish(summary engine.Summary) {
	s.mu.Lock()
	if s.reported {
		s.mu.Unlock()
		return
	}
	s.reported = true
	s.mu.Unlock()

	s.tracker.send(s.Build(summary))
}

// Wait blocks until pending reports are sent
func (t *Tracker) Wait() {
	t.wg.Wait()
}

func (t *Tracker) send(report *Report) {
	if t.url == "" {
		logger.Info("metrics: session %s conflicts=%d ai=%d kept=%d resolved=%d duration=%dms",
			report.SessionID, report.ConflictPointNum, report.UseAIConflictPointNum,
			report.ReceiveNum, report.ResolvedNum, report.DurationMs)
		return
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := t.post(ctx, report); err != nil {
			logger.Debug("metrics: %v", err)
			return
		}
		logger.Debug("metrics: sent report (session=%s)", report.SessionID)
	}()
}

func (t *Tracker) post(ctx context.Context, report *Report) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", t.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send report: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return nil
}

func loadOrCreateDeviceID(dataDir string) string {
	if dataDir == "" {
		return uuid.NewString()
	}

	idPath := filepath.Join(dataDir, "device_id")

	data, err := os.ReadFile(idPath)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if id != "" {
			return id
		}
	}

	id := uuid.NewString()
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		logger.Warn("metrics: could not create data dir %s: %v", dataDir, err)
		return id
	}
	if err := os.WriteFile(idPath, []byte(id), 0644); err != nil {
		logger.Warn("metrics: could not write device_id: %v", err)
	}
	return id
}
