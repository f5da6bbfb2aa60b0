// Package httpapi serves the control operations over local HTTP.
package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nugrahalabib/moltbot/internal/control"
	"github.com/nugrahalabib/moltbot/internal/logging"
	"github.com/nugrahalabib/moltbot/internal/metrics"
	"github.com/nugrahalabib/moltbot/internal/model"
	"github.com/nugrahalabib/moltbot/internal/uds"
)

const maxBodySize = 1 << 20

type handler struct {
	svc *control.Service
	log *logging.Logger
}

// NewRouter builds the API routes over svc.
func NewRouter(svc *control.Service, log *logging.Logger) *mux.Router {
	if log == nil {
		log = logging.Discard()
	}
	h := &handler{svc: svc, log: log}
	r := mux.NewRouter()
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	api := r.PathPrefix("/api").Subrouter()
	// Without its own handler a method mismatch inside the subrouter falls
	// through to 404.
	api.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	api.Use(instrument)
	api.HandleFunc("/status", h.status).Methods(http.MethodGet)
	api.HandleFunc("/alarms", h.listAlarms).Methods(http.MethodGet)
	api.HandleFunc("/alarms", h.addAlarm).Methods(http.MethodPost)
	api.HandleFunc("/alarms.ics", h.exportICS).Methods(http.MethodGet)
	api.HandleFunc("/alarms/{id}", h.deleteAlarm).Methods(http.MethodDelete)
	api.HandleFunc("/alarms/{id}/toggle", h.toggleAlarm).Methods(http.MethodPost)
	api.HandleFunc("/alarms/{id}/upcoming", h.upcoming).Methods(http.MethodGet)
	api.HandleFunc("/next-alarm", h.nextAlarm).Methods(http.MethodGet)
	api.HandleFunc("/reminders", h.listReminders).Methods(http.MethodGet)
	api.HandleFunc("/reminders", h.addReminder).Methods(http.MethodPost)
	api.HandleFunc("/reminders/{id}", h.deleteReminder).Methods(http.MethodDelete)
	api.HandleFunc("/active", h.active).Methods(http.MethodGet)
	api.HandleFunc("/active/snooze", h.snooze).Methods(http.MethodPost)
	api.HandleFunc("/active/dismiss", h.dismiss).Methods(http.MethodPost)
	api.HandleFunc("/check", h.check).Methods(http.MethodPost)
	api.HandleFunc("/routines/{name}", h.routine).Methods(http.MethodPost)
	api.HandleFunc("/test/{kind}", h.test).Methods(http.MethodPost)
	api.HandleFunc("/config", h.config).Methods(http.MethodGet)
	api.HandleFunc("/config", h.updateConfig).Methods(http.MethodPost)
	api.HandleFunc("/lights/{action}", h.lights).Methods(http.MethodPost)
	api.HandleFunc("/ac/{action}", h.ac).Methods(http.MethodPost)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OK"))
	}).Methods(http.MethodGet)
	// The wake presentation page polls the active episode.
	r.HandleFunc("/", h.active).Methods(http.MethodGet)
	return r
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	metrics.IncControlRequest("http", r.Method+" "+r.URL.Path, strconv.Itoa(http.StatusMethodNotAllowed))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusMethodNotAllowed)
	_ = json.NewEncoder(w).Encode(uds.ErrorResponse(uds.ErrCodeUnknownCommand,
		fmt.Sprintf("method %s not allowed on %s", r.Method, r.URL.Path)))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument counts API requests by method, route template and status.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		metrics.IncControlRequest("http", r.Method+" "+route, strconv.Itoa(rec.status))
	})
}

// NewServer wraps the router in an http.Server listening on addr.
func NewServer(addr string, svc *control.Service, log *logging.Logger) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewRouter(svc, log),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
}

// StatusCode maps a wire error code to an HTTP status.
func StatusCode(code string) int {
	switch code {
	case uds.ErrCodeValidation, uds.ErrCodeInvalidSnooze:
		return http.StatusBadRequest
	case uds.ErrCodeNotFound:
		return http.StatusNotFound
	case uds.ErrCodeNoActiveAlarm, uds.ErrCodeSnoozeLimit:
		return http.StatusConflict
	case uds.ErrCodeWrongAnswer:
		return http.StatusUnprocessableEntity
	case uds.ErrCodeBusy:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (h *handler) reply(w http.ResponseWriter, data any, err error) {
	resp := control.Response(data, err)
	status := http.StatusOK
	if resp.Error != nil {
		status = StatusCode(resp.Error.Code)
		if status == http.StatusInternalServerError {
			h.log.Warnf("http: %v", err)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// decode reads an optional JSON body into v.
func decode(r *http.Request, v any) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", control.ErrInvalidInput, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", control.ErrInvalidInput, err)
	}
	return nil
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.Status()
	h.reply(w, rep, err)
}

func (h *handler) listAlarms(w http.ResponseWriter, r *http.Request) {
	alarms, err := h.svc.ListAlarms()
	h.reply(w, alarms, err)
}

func (h *handler) addAlarm(w http.ResponseWriter, r *http.Request) {
	var a model.Alarm
	if err := decode(r, &a); err != nil {
		h.reply(w, nil, err)
		return
	}
	added, err := h.svc.AddAlarm(a)
	h.reply(w, added, err)
}

func (h *handler) deleteAlarm(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.DeleteAlarm(mux.Vars(r)["id"])
	h.reply(w, map[string]int{"deleted": n}, err)
}

func (h *handler) toggleAlarm(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := decode(r, &body); err != nil {
		h.reply(w, nil, err)
		return
	}
	a, err := h.svc.ToggleAlarm(mux.Vars(r)["id"], body.Enabled)
	h.reply(w, a, err)
}

func (h *handler) upcoming(w http.ResponseWriter, r *http.Request) {
	n := 5
	if s := r.URL.Query().Get("n"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			h.reply(w, nil, fmt.Errorf("%w: n must be a number", control.ErrInvalidInput))
			return
		}
		n = v
	}
	times, err := h.svc.Upcoming(mux.Vars(r)["id"], n)
	h.reply(w, times, err)
}

func (h *handler) nextAlarm(w http.ResponseWriter, r *http.Request) {
	next, err := h.svc.NextAlarm()
	h.reply(w, next, err)
}

func (h *handler) listReminders(w http.ResponseWriter, r *http.Request) {
	reminders, err := h.svc.ListReminders()
	h.reply(w, reminders, err)
}

func (h *handler) addReminder(w http.ResponseWriter, r *http.Request) {
	var rem model.Reminder
	if err := decode(r, &rem); err != nil {
		h.reply(w, nil, err)
		return
	}
	added, err := h.svc.AddReminder(rem)
	h.reply(w, added, err)
}

func (h *handler) deleteReminder(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.DeleteReminder(mux.Vars(r)["id"])
	h.reply(w, map[string]int{"deleted": n}, err)
}

func (h *handler) active(w http.ResponseWriter, r *http.Request) {
	h.reply(w, h.svc.Active(), nil)
}

func (h *handler) snooze(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Minutes int `json:"minutes"`
	}
	if err := decode(r, &body); err != nil {
		h.reply(w, nil, err)
		return
	}
	res, err := h.svc.Snooze(body.Minutes)
	h.reply(w, res, err)
}

func (h *handler) dismiss(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Answer json.Number `json:"answer"`
	}
	if err := decode(r, &body); err != nil {
		h.reply(w, nil, err)
		return
	}
	err := h.svc.Dismiss(body.Answer.String())
	h.reply(w, map[string]bool{"dismissed": err == nil}, err)
}

func (h *handler) check(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.Check(r.Context())
	h.reply(w, rep, err)
}

func (h *handler) routine(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	err := h.svc.RunRoutine(name)
	h.reply(w, map[string]string{"started": name}, err)
}

func (h *handler) test(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Mode model.Mode `json:"mode"`
		Text string     `json:"text"`
	}
	if err := decode(r, &body); err != nil {
		h.reply(w, nil, err)
		return
	}
	kind := mux.Vars(r)["kind"]
	err := h.svc.RunTest(kind, body.Mode, body.Text)
	h.reply(w, map[string]string{"started": kind}, err)
}

func (h *handler) config(w http.ResponseWriter, r *http.Request) {
	h.reply(w, h.svc.Config(), nil)
}

func (h *handler) updateConfig(w http.ResponseWriter, r *http.Request) {
	patch, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		h.reply(w, nil, fmt.Errorf("%w: read body: %v", control.ErrInvalidInput, err))
		return
	}
	cfg, err := h.svc.UpdateConfig(patch)
	h.reply(w, cfg, err)
}

// queryInt reads an optional integer query parameter, zero when absent.
func queryInt(r *http.Request, key string) (int, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", control.ErrInvalidInput, key)
	}
	return v, nil
}

func (h *handler) lights(w http.ResponseWriter, r *http.Request) {
	action := mux.Vars(r)["action"]
	brightness, err := queryInt(r, "brightness")
	if err != nil {
		h.reply(w, nil, err)
		return
	}
	err = h.svc.Lights(action, brightness, r.URL.Query().Get("color"))
	h.reply(w, map[string]string{"action": action}, err)
}

func (h *handler) ac(w http.ResponseWriter, r *http.Request) {
	action := mux.Vars(r)["action"]
	temp, err := queryInt(r, "temp")
	if err != nil {
		h.reply(w, nil, err)
		return
	}
	err = h.svc.AC(action, temp)
	h.reply(w, map[string]string{"action": action}, err)
}

func (h *handler) exportICS(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.svc.ExportICS(&buf); err != nil {
		h.reply(w, nil, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="shila-wake.ics"`)
	_, _ = buf.WriteTo(w)
}
