package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/field-worklog-bot/internal/api"
	"github.com/field-worklog-bot/internal/config"
	"github.com/field-worklog-bot/internal/dialog"
	"github.com/field-worklog-bot/internal/mocks"
	"github.com/field-worklog-bot/internal/models"
	"github.com/field-worklog-bot/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const adminToken = "s3cret"

type stubQueue struct {
	events []*models.ChatEvent
	err    error
}

func (q *stubQueue) Submit(ev *models.ChatEvent) error {
	if q.err != nil {
		return q.err
	}
	q.events = append(q.events, ev)
	return nil
}

type stubScheduler struct {
	res  *models.SyncResult
	err  error
	runs int
}

func (s *stubScheduler) StartProcessor(ctx context.Context) {}
func (s *stubScheduler) StopProcessor()                     {}
func (s *stubScheduler) RunNow(ctx context.Context) (*models.SyncResult, error) {
	s.runs++
	return s.res, s.err
}

type fixture struct {
	router    *gin.Engine
	queue     *stubQueue
	scheduler *stubScheduler
	repos     *mocks.MockReportRepository
}

func setupTestRouter(token string) *fixture {
	gin.SetMode(gin.TestMode)

	repos := mocks.NewRepositories()
	res := &models.SyncResult{RunID: "run-1", Inserted: 2}
	res.SetDuration(1500 * time.Millisecond)
	sched := &stubScheduler{res: res}
	services := &service.Services{
		Scheduler: sched,
		Stats:     service.NewStatsService(repos),
	}
	cfg := &config.Config{Server: config.ServerConfig{WriteTimeout: 5 * time.Second, AdminToken: token}}
	queue := &stubQueue{}

	return &fixture{
		router:    api.NewRouter(services, queue, cfg, zerolog.Nop()),
		queue:     queue,
		scheduler: sched,
		repos:     repos.Report.(*mocks.MockReportRepository),
	}
}

func (f *fixture) do(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	f := setupTestRouter(adminToken)

	w := f.do(http.MethodGet, "/health", "", "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	if response["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", response["status"])
	}
}

func TestChatEvents_Accepted(t *testing.T) {
	f := setupTestRouter(adminToken)

	w := f.do(http.MethodPost, "/v1/chat/events", `{"chat_id": 5, "user_id": 7, "choice": "start"}`, "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d: %s", w.Code, w.Body.String())
	}
	if len(f.queue.events) != 1 || f.queue.events[0].Choice != "start" {
		t.Errorf("Expected the event to be queued, got %+v", f.queue.events)
	}
}

func TestChatEvents_Rejected(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		queueErr error
		want     int
	}{
		{"malformed json", `{"chat_id": `, nil, http.StatusBadRequest},
		{"missing user", `{"chat_id": 5, "text": "hi"}`, nil, http.StatusUnprocessableEntity},
		{"choice and text", `{"chat_id": 5, "user_id": 7, "choice": "back", "text": "hi"}`, nil, http.StatusUnprocessableEntity},
		{"neither choice nor text", `{"chat_id": 5, "user_id": 7}`, nil, http.StatusUnprocessableEntity},
		{"loop busy", `{"chat_id": 5, "user_id": 7, "text": "3"}`, dialog.ErrLoopBusy, http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestRouter(adminToken)
			f.queue.err = tt.queueErr

			w := f.do(http.MethodPost, "/v1/chat/events", tt.body, "")
			if w.Code != tt.want {
				t.Errorf("Expected status %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
			if len(f.queue.events) != 0 {
				t.Errorf("Expected nothing queued, got %d events", len(f.queue.events))
			}
		})
	}
}

func TestAdmin_RequiresToken(t *testing.T) {
	f := setupTestRouter(adminToken)

	if w := f.do(http.MethodPost, "/v1/admin/export", "", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", w.Code)
	}
	if w := f.do(http.MethodPost, "/v1/admin/export", "", "wrong"); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 with a wrong token, got %d", w.Code)
	}
	if f.scheduler.runs != 0 {
		t.Errorf("Expected no sync run, got %d", f.scheduler.runs)
	}

	closed := setupTestRouter("")
	if w := closed.do(http.MethodGet, "/v1/admin/stats", "", "anything"); w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 when no admin token is configured, got %d", w.Code)
	}
}

func TestAdmin_Export(t *testing.T) {
	f := setupTestRouter(adminToken)

	w := f.do(http.MethodPost, "/v1/admin/export", "", adminToken)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var response struct {
		Result  models.SyncResult `json:"result"`
		Summary string            `json:"summary"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.Result.RunID != "run-1" || response.Result.Inserted != 2 {
		t.Errorf("Unexpected result: %+v", response.Result)
	}
	if response.Summary != "inserted 2, updated 0, deleted 0" {
		t.Errorf("Unexpected summary %q", response.Summary)
	}

	var raw struct {
		Result map[string]interface{} `json:"result"`
	}
	json.Unmarshal(w.Body.Bytes(), &raw)
	if raw.Result["duration_ms"] != float64(1500) {
		t.Errorf("Expected duration_ms 1500, got %v", raw.Result["duration_ms"])
	}
}

func TestAdmin_ExportInProgress(t *testing.T) {
	f := setupTestRouter(adminToken)
	f.scheduler.res, f.scheduler.err = nil, models.ErrSyncInProgress

	if w := f.do(http.MethodPost, "/v1/admin/export", "", adminToken); w.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Code)
	}
}

func TestAdmin_Stats(t *testing.T) {
	f := setupTestRouter(adminToken)
	date := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		f.repos.Create(context.Background(), &models.Report{CreatorID: 7, WorkDate: date, Hours: 2})
	}

	w := f.do(http.MethodGet, "/v1/admin/stats", "", adminToken)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var stats models.Stats
	json.Unmarshal(w.Body.Bytes(), &stats)
	if stats.Reports != 3 || stats.MirroredRows != 0 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}
