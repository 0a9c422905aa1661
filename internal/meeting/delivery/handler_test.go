package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mailagent-backend/internal/agent"
	"mailagent-backend/internal/dispatch"
	emailrepo "mailagent-backend/internal/email/repository"
	"mailagent-backend/internal/meeting/domain"
	"mailagent-backend/internal/meeting/repository"
	"mailagent-backend/internal/meeting/usecase"
	taskrepo "mailagent-backend/internal/task/repository"
	"mailagent-backend/internal/testutil"
	"mailagent-backend/pkg/ai"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Wednesday
var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func setupRouter(t *testing.T) (*gin.Engine, repository.MeetingRepository) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewDB(t)
	meetings := repository.NewGormMeetingRepository(db)
	clock := func() time.Time { return now }
	agents := agent.NewRegistry(ai.NewRuleAnalyzerWithClock(clock), meetings, agent.Options{Organizer: "owner@example.com", Now: clock})
	writer := dispatch.NewStoreWriter(meetings, taskrepo.NewGormTaskRepository(db), emailrepo.NewSentimentRepository(db))
	d := dispatch.New(emailrepo.NewProcessedMessageRepository(db), writer, agents, nil, dispatch.Config{Workers: 2})
	d.Start()
	t.Cleanup(func() { _ = d.Stop(context.Background()) })

	h := NewMeetingHandler(usecase.NewMeetingUsecase(meetings, d, "owner@example.com"))
	r := gin.New()
	r.POST("/schedule", h.Schedule)
	r.POST("/reschedule", h.Reschedule)
	r.POST("/cancel", h.Cancel)
	r.POST("/feedback", h.SubmitFeedback)
	r.GET("/meetings", h.ListMeetings)
	r.GET("/meeting/:id", h.GetMeeting)
	r.GET("/feedback", h.ListFeedback)
	return r, meetings
}

func seedMeeting(t *testing.T, meetings repository.MeetingRepository, id uint, status domain.MeetingStatus) {
	t.Helper()
	start := time.Date(2024, 5, 2, 15, 0, 0, 0, time.UTC)
	_, err := meetings.UpsertMeeting(&domain.Meeting{
		ID:          id,
		SourceMsgID: "seed",
		Title:       "Design review",
		Organizer:   "owner@example.com",
		StartTime:   start,
		EndTime:     start.Add(time.Hour),
		Status:      status,
	})
	require.NoError(t, err)
}

func do(t *testing.T, r *gin.Engine, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return w.Code, out
}

func TestScheduleEndpoint(t *testing.T) {
	r, _ := setupRouter(t)

	code, body := do(t, r, http.MethodPost, "/schedule", gin.H{"text": "Schedule a meeting tomorrow at 3pm with bob@example.com"})
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body["message"], "scheduled for")

	code, body = do(t, r, http.MethodGet, "/meetings", nil)
	require.Equal(t, http.StatusOK, code)
	meetings := body["meetings"].([]interface{})
	require.Len(t, meetings, 1)
	m := meetings[0].(map[string]interface{})
	assert.Equal(t, "confirmed", m["status"])
	assert.Equal(t, "owner@example.com", m["organizer"])
}

func TestScheduleRequiresText(t *testing.T) {
	r, _ := setupRouter(t)

	code, body := do(t, r, http.MethodPost, "/schedule", gin.H{})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.NotEmpty(t, body["error"])
}

func TestCancelIsRepeatable(t *testing.T) {
	r, meetings := setupRouter(t)
	seedMeeting(t, meetings, 7, domain.MeetingStatusConfirmed)

	code, first := do(t, r, http.MethodPost, "/cancel", gin.H{"meeting_id": 7})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Meeting 7 canceled successfully.", first["message"])

	code, second := do(t, r, http.MethodPost, "/cancel", gin.H{"meeting_id": 7})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, first, second)

	m, err := meetings.FindByID(7)
	require.NoError(t, err)
	assert.Equal(t, domain.MeetingStatusCanceled, m.Status)

	code, _ = do(t, r, http.MethodPost, "/cancel", gin.H{"meeting_id": 99})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRescheduleEndpoint(t *testing.T) {
	r, meetings := setupRouter(t)
	seedMeeting(t, meetings, 7, domain.MeetingStatusConfirmed)

	code, body := do(t, r, http.MethodPost, "/reschedule", gin.H{"text": "Please reschedule meeting 7 to Friday at 11am"})
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body["message"], "Meeting 7 rescheduled")

	m, err := meetings.FindByID(7)
	require.NoError(t, err)
	assert.Equal(t, domain.MeetingStatusProposed, m.Status)
	assert.True(t, m.StartTime.Equal(time.Date(2024, 5, 3, 11, 0, 0, 0, time.UTC)))
}

func TestFeedbackEndpoints(t *testing.T) {
	r, meetings := setupRouter(t)
	seedMeeting(t, meetings, 7, domain.MeetingStatusConfirmed)

	code, _ := do(t, r, http.MethodPost, "/feedback", gin.H{"meeting_id": 7, "rating": 9})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, r, http.MethodPost, "/feedback", gin.H{"meeting_id": 42, "rating": 4})
	assert.Equal(t, http.StatusNotFound, code)

	code, body := do(t, r, http.MethodPost, "/feedback", gin.H{"meeting_id": 7, "rating": 4, "comments": "Useful"})
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body["message"], "average rating is 4.0/5")

	code, body = do(t, r, http.MethodGet, "/meeting/7", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Design review", body["meeting"].(map[string]interface{})["title"])
	assert.Len(t, body["feedback"], 1)

	code, body = do(t, r, http.MethodGet, "/feedback", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["feedback"], 1)

	code, _ = do(t, r, http.MethodGet, "/meeting/abc", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = do(t, r, http.MethodGet, "/meeting/100", nil)
	assert.Equal(t, http.StatusNotFound, code)
}
