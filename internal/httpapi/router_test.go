package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nugrahalabib/moltbot/internal/active"
	"github.com/nugrahalabib/moltbot/internal/control"
	"github.com/nugrahalabib/moltbot/internal/metrics"
	"github.com/nugrahalabib/moltbot/internal/model"
	"github.com/nugrahalabib/moltbot/internal/store"
	"github.com/nugrahalabib/moltbot/internal/trigger"
	"github.com/nugrahalabib/moltbot/internal/uds"
)

type stubChecker struct{}

func (stubChecker) CheckAlarms(ctx context.Context, now time.Time) (trigger.Result, error) {
	return trigger.Result{}, nil
}

func (stubChecker) CheckReminders(ctx context.Context, now time.Time) (trigger.Result, error) {
	return trigger.Result{}, nil
}

type stubEpisodes struct {
	ringing bool
}

func (s *stubEpisodes) Status() active.Status {
	if s.ringing {
		return active.Status{Active: true, State: active.StateRinging, Question: "3 + 4 = ?"}
	}
	return active.Status{State: active.StateIdle}
}

func (s *stubEpisodes) Snooze(minutes int) (active.SnoozeResult, error) {
	if !s.ringing {
		return active.SnoozeResult{}, active.ErrNoActiveAlarm
	}
	return active.SnoozeResult{Count: 1}, nil
}

func (s *stubEpisodes) Dismiss(answer int) error {
	if answer != 7 {
		return &active.WrongAnswerError{Question: "2 + 9 = ?"}
	}
	s.ringing = false
	return nil
}

type stubActions struct{}

func (stubActions) RunRoutine(ctx context.Context, name string) error { return nil }

func (stubActions) Test(ctx context.Context, kind string, mode model.Mode, text string) error {
	return nil
}

func (stubActions) Lights(ctx context.Context, on bool, brightness int, color string) error {
	return nil
}

func (stubActions) SetAC(ctx context.Context, on bool, temp int) error { return nil }

func newTestRouter(t *testing.T, eps *stubEpisodes) http.Handler {
	t.Helper()
	now := time.Date(2026, 10, 14, 6, 0, 0, 0, time.FixedZone("WIB", 7*3600))
	clock := func() time.Time { return now }
	dir := t.TempDir()
	st := store.New(dir, store.WithClock(clock))
	cfg := model.DefaultConfig()
	cfg.Devices.Enabled = true
	svc := control.New(cfg, st, stubChecker{}, eps, stubActions{}, control.WithClock(clock), control.WithDataDir(dir))
	t.Cleanup(svc.Close)
	return NewRouter(svc, nil)
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, uds.Response) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var resp uds.Response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestAlarmRoutes(t *testing.T) {
	h := newTestRouter(t, &stubEpisodes{})

	rec, resp := do(t, h, http.MethodPost, "/api/alarms", `{"time":"07:00","repeat":"daily","label":"subuh","mode":"gentle"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var added model.Alarm
	require.NoError(t, resp.Decode(&added))
	assert.Equal(t, model.ModeGentle, added.Mode)
	assert.True(t, added.Enabled)

	rec, resp = do(t, h, http.MethodPost, "/api/alarms", `{"time":"25:00"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, uds.ErrCodeValidation, resp.Error.Code)

	_, resp = do(t, h, http.MethodGet, "/api/alarms", "")
	var list []model.Alarm
	require.NoError(t, resp.Decode(&list))
	require.Len(t, list, 1)

	rec, resp = do(t, h, http.MethodPost, "/api/alarms/"+added.ID+"/toggle", `{"enabled":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var toggled model.Alarm
	require.NoError(t, resp.Decode(&toggled))
	assert.False(t, toggled.Enabled)

	rec, _ = do(t, h, http.MethodGet, "/api/next-alarm", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/alarms/"+added.ID+"/upcoming?n=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodDelete, "/api/alarms/"+added.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(t, h, http.MethodDelete, "/api/alarms/"+added.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReminderRoutes(t *testing.T) {
	h := newTestRouter(t, &stubEpisodes{})

	rec, resp := do(t, h, http.MethodPost, "/api/reminders", `{"time":"12:00","message":"minum obat","priority":"high"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var added model.Reminder
	require.NoError(t, resp.Decode(&added))
	assert.Equal(t, model.PriorityHigh, added.Priority)

	rec, _ = do(t, h, http.MethodPost, "/api/reminders", `{"time":"12:00"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/reminders", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp = do(t, h, http.MethodDelete, "/api/reminders/all", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var deleted map[string]int
	require.NoError(t, resp.Decode(&deleted))
	assert.Equal(t, 1, deleted["deleted"])
}

func TestActiveRoutes(t *testing.T) {
	eps := &stubEpisodes{}
	h := newTestRouter(t, eps)

	rec, resp := do(t, h, http.MethodPost, "/api/active/snooze", `{}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, uds.ErrCodeNoActiveAlarm, resp.Error.Code)

	eps.ringing = true
	_, resp = do(t, h, http.MethodGet, "/api/active", "")
	var st active.Status
	require.NoError(t, resp.Decode(&st))
	assert.Equal(t, "3 + 4 = ?", st.Question)

	rec, resp = do(t, h, http.MethodPost, "/api/active/dismiss", `{"answer":6}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var hint map[string]string
	require.NoError(t, resp.Decode(&hint))
	assert.Equal(t, "2 + 9 = ?", hint["question"])

	rec, _ = do(t, h, http.MethodPost, "/api/active/dismiss", `{"answer":7}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, eps.ringing)
}

func TestActionRoutes(t *testing.T) {
	h := newTestRouter(t, &stubEpisodes{})

	rec, _ := do(t, h, http.MethodPost, "/api/routines/morning", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(t, h, http.MethodPost, "/api/routines/party", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = do(t, h, http.MethodPost, "/api/test/wake", `{"mode":"nuclear"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(t, h, http.MethodPost, "/api/check", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeviceRoutes(t *testing.T) {
	h := newTestRouter(t, &stubEpisodes{})

	rec, resp := do(t, h, http.MethodPost, "/api/lights/on?brightness=60&color=warm", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body map[string]string
	require.NoError(t, resp.Decode(&body))
	assert.Equal(t, "on", body["action"])

	rec, _ = do(t, h, http.MethodPost, "/api/lights/off", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(t, h, http.MethodPost, "/api/lights/blink", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = do(t, h, http.MethodPost, "/api/lights/on?brightness=lots", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/ac/on?temp=22", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(t, h, http.MethodPost, "/api/ac/on?temp=5", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfigUpdateRoute(t *testing.T) {
	h := newTestRouter(t, &stubEpisodes{})

	rec, resp := do(t, h, http.MethodPost, "/api/config", `{"wake":{"snooze_minutes":15}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var cfg model.Config
	require.NoError(t, resp.Decode(&cfg))
	assert.Equal(t, 15, cfg.Wake.SnoozeMinutes)

	_, resp = do(t, h, http.MethodGet, "/api/config", "")
	require.NoError(t, resp.Decode(&cfg))
	assert.Equal(t, 15, cfg.Wake.SnoozeMinutes)

	rec, resp = do(t, h, http.MethodPost, "/api/config", `{"wake":{"volume":400}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, uds.ErrCodeValidation, resp.Error.Code)
}

func TestMiscRoutes(t *testing.T) {
	metrics.Init()
	h := newTestRouter(t, &stubEpisodes{})

	_, resp := do(t, h, http.MethodPost, "/api/alarms", `{"time":"08:00","repeat":"mon,wed"}`)
	require.True(t, resp.Success)

	rec, _ := do(t, h, http.MethodGet, "/api/alarms.ics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "BYDAY=MO,WE")

	_, resp = do(t, h, http.MethodGet, "/api/config", "")
	var cfg map[string]any
	require.NoError(t, resp.Decode(&cfg))
	assert.Contains(t, cfg, "wake")

	rec, _ = do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `shila_control_requests_total{command="GET /api/alarms.ics",result="200",transport="http"}`)

	_, resp = do(t, h, http.MethodGet, "/api/status", "")
	assert.True(t, resp.Success)

	rec, resp = do(t, h, http.MethodPut, "/api/alarms", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, uds.ErrCodeUnknownCommand, resp.Error.Code)

	rec, _ = do(t, h, http.MethodPost, "/health", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, StatusCode(uds.ErrCodeBusy))
	assert.Equal(t, http.StatusConflict, StatusCode(uds.ErrCodeSnoozeLimit))
	assert.Equal(t, http.StatusInternalServerError, StatusCode(uds.ErrCodeInternal))
}
