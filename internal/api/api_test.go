package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tazhate/familyplanner/internal/domain"
	"github.com/tazhate/familyplanner/internal/logger"
	"github.com/tazhate/familyplanner/internal/metrics"
	"github.com/tazhate/familyplanner/internal/service"
	"github.com/tazhate/familyplanner/internal/storage"
)

var testNow = time.Date(2025, 3, 10, 8, 30, 0, 0, time.UTC)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := storage.New(filepath.Join(t.TempDir(), "planner.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	log := logger.Nop()
	m := metrics.New()
	return NewRouter(Options{
		Username:  "family",
		Password:  "secret",
		Events:    service.NewEventService(store, nil, m, time.UTC, log),
		Imports:   service.NewImportService(store, nil, m, time.UTC, 0, log),
		Reminders: service.NewReminderService(store, m, log),
		Metrics:   m,
		Timezone:  time.UTC,
		Log:       log,
		Now:       func() time.Time { return testNow },
	})
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func do(t *testing.T, r http.Handler, method, target string, body io.Reader, contentType string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.SetBasicAuth("family", "secret")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func doJSON(t *testing.T, r http.Handler, method, target string, payload any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}
	return do(t, r, method, target, body, "application/json")
}

func createSeries(t *testing.T, r http.Handler) domain.Event {
	t.Helper()
	w, env := doJSON(t, r, http.MethodPost, "/api/events", map[string]any{
		"title":     "Swimming",
		"startAt":   "2025-03-03T09:00:00Z",
		"endAt":     "2025-03-03T10:00:00Z",
		"repeat":    map[string]any{"preset": "weekly", "interval": 1, "endMode": "never"},
		"reminders": []map[string]any{{"minutesBefore": 30}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.True(t, env.Success)

	var ev domain.Event
	require.NoError(t, json.Unmarshal(env.Data, &ev))
	return ev
}

func TestRouter_Health(t *testing.T) {
	r := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestRouter_RequiresBasicAuth(t *testing.T) {
	r := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/events/1", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_DisabledWithoutCredentials(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewRouter(Options{Log: logger.Nop()})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/events/1", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_EventLifecycle(t *testing.T) {
	r := newTestRouter(t)
	series := createSeries(t, r)
	assert.Equal(t, "DTSTART:20250303T090000Z\nRRULE:FREQ=WEEKLY;BYDAY=MO", *series.RecurrenceRule)

	target := "/api/events/" + itoa(series.ID) + "?scope=single&occurrenceStart=" + url.QueryEscape("2025-03-10T09:00:00Z")
	w, env := doJSON(t, r, http.MethodPatch, target, map[string]any{"title": "Swimming (moved)", "startAt": "2025-03-10T11:00:00Z", "endAt": "2025-03-10T12:00:00Z"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var override domain.Event
	require.NoError(t, json.Unmarshal(env.Data, &override))
	require.NotNil(t, override.ParentEventID)
	assert.Equal(t, series.ID, *override.ParentEventID)
	assert.Nil(t, override.RecurrenceRule)

	w, env = doJSON(t, r, http.MethodGet, "/api/events/"+itoa(series.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var root domain.Event
	require.NoError(t, json.Unmarshal(env.Data, &root))
	require.Len(t, root.Exdates, 1)
	assert.True(t, root.Exdates[0].Equal(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)))

	w, env = doJSON(t, r, http.MethodGet, "/api/occurrences?from=2025-03-01T00:00:00Z&to=2025-03-18T00:00:00Z", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var occ struct {
		Occurrences []OccurrenceResponse `json:"occurrences"`
		Truncated   []int64              `json:"truncated"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &occ))
	require.Len(t, occ.Occurrences, 3)
	assert.Equal(t, "Swimming (moved)", occ.Occurrences[1].Title)
	assert.Empty(t, occ.Truncated)

	w, env = doJSON(t, r, http.MethodGet, "/api/events?from=2025-03-01T00:00:00Z&to=2025-03-18T00:00:00Z", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var candidates []domain.Event
	require.NoError(t, json.Unmarshal(env.Data, &candidates))
	assert.Len(t, candidates, 2)

	w, _ = doJSON(t, r, http.MethodDelete, "/api/events/"+itoa(series.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, env = doJSON(t, r, http.MethodGet, "/api/events/"+itoa(override.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, env.Success)
}

func TestRouter_ValidationErrors(t *testing.T) {
	r := newTestRouter(t)
	series := createSeries(t, r)

	cases := map[string]struct {
		method string
		target string
		body   any
		status int
	}{
		"single scope without occurrence": {http.MethodDelete, "/api/events/" + itoa(series.ID) + "?scope=single", nil, http.StatusBadRequest},
		"unknown scope":                   {http.MethodDelete, "/api/events/" + itoa(series.ID) + "?scope=all", nil, http.StatusBadRequest},
		"bad occurrence time":             {http.MethodDelete, "/api/events/" + itoa(series.ID) + "?scope=single&occurrenceStart=monday", nil, http.StatusBadRequest},
		"bad id":                          {http.MethodGet, "/api/events/abc", nil, http.StatusBadRequest},
		"missing event":                   {http.MethodGet, "/api/events/999", nil, http.StatusNotFound},
		"end before start": {http.MethodPost, "/api/events", map[string]any{
			"title": "x", "startAt": "2025-03-03T10:00:00Z", "endAt": "2025-03-03T09:00:00Z",
		}, http.StatusBadRequest},
		"invalid raw rule": {http.MethodPost, "/api/events", map[string]any{
			"title": "x", "startAt": "2025-03-03T09:00:00Z", "endAt": "2025-03-03T10:00:00Z", "recurrenceRule": "RRULE:FREQ=WEEKLY;UNTIL=20250401T000000Z;COUNT=3",
		}, http.StatusBadRequest},
		"window without bounds": {http.MethodGet, "/api/occurrences", nil, http.StatusBadRequest},
		"bad window minutes":    {http.MethodGet, "/api/reminders/due?windowMinutes=soon", nil, http.StatusBadRequest},
		"unknown reminder":      {http.MethodPost, "/api/reminders/999/fire", nil, http.StatusNotFound},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			w, env := doJSON(t, r, tc.method, tc.target, tc.body)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
			assert.False(t, env.Success)
			assert.NotEmpty(t, env.Error)
		})
	}
}

func TestRouter_Reminders(t *testing.T) {
	r := newTestRouter(t)
	createSeries(t, r)

	// The reminder of the 2025-03-03 root fired long before testNow, so
	// create an event whose reminder is due at 08:30.
	w, env := doJSON(t, r, http.MethodPost, "/api/events", map[string]any{
		"title":     "Dentist",
		"startAt":   "2025-03-10T09:00:00Z",
		"endAt":     "2025-03-10T09:30:00Z",
		"reminders": []map[string]any{{"minutesBefore": 30}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var dentist domain.Event
	require.NoError(t, json.Unmarshal(env.Data, &dentist))

	w, env = doJSON(t, r, http.MethodGet, "/api/reminders/due?windowMinutes=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var due []domain.DueReminder
	require.NoError(t, json.Unmarshal(env.Data, &due))
	require.Len(t, due, 1)
	assert.Equal(t, dentist.ID, due[0].Event.ID)

	id := itoa(due[0].Reminder.ID)
	for i := 0; i < 2; i++ {
		w, env = doJSON(t, r, http.MethodPost, "/api/reminders/"+id+"/fire", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var fired domain.Reminder
		require.NoError(t, json.Unmarshal(env.Data, &fired))
		require.NotNil(t, fired.FiredAt)
		assert.True(t, fired.FiredAt.Equal(testNow))
	}

	w, env = doJSON(t, r, http.MethodGet, "/api/reminders/due?windowMinutes=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", string(env.Data))
}

func TestRouter_Import(t *testing.T) {
	r := newTestRouter(t)
	doc := "BEGIN:VCALENDAR\nBEGIN:VEVENT\nSUMMARY:Concert\nDTSTART:20250415T160000Z\nEND:VEVENT\nEND:VCALENDAR\n"

	w, env := do(t, r, http.MethodPost, "/api/import", strings.NewReader(doc), "text/calendar")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var res service.ImportResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	require.Len(t, res.Events, 1)
	assert.Equal(t, "Concert", res.Events[0].Title)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "school.ics")
	require.NoError(t, err)
	_, err = fw.Write([]byte(doc))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	w, _ = do(t, r, http.MethodPost, "/api/import", &buf, mw.FormDataContentType())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, env = do(t, r, http.MethodPost, "/api/import", strings.NewReader("BEGIN:VCALENDAR\nEND:VCALENDAR\n"), "text/calendar")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, env.Success)
}

func TestRouter_CalendarFeed(t *testing.T) {
	r := newTestRouter(t)
	createSeries(t, r)

	w, _ := do(t, r, http.MethodGet, "/api/calendar.ics", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "BEGIN:VCALENDAR")
	assert.Contains(t, w.Body.String(), "RRULE:FREQ=WEEKLY;BYDAY=MO")
}

func TestRouter_Rules(t *testing.T) {
	r := newTestRouter(t)

	w, env := doJSON(t, r, http.MethodGet, "/api/rule/decode?rule="+url.QueryEscape("RRULE:FREQ=MONTHLY;INTERVAL=2;COUNT=6"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cfg domain.RepeatConfig
	require.NoError(t, json.Unmarshal(env.Data, &cfg))
	assert.Equal(t, domain.RepeatCustom, cfg.Preset)
	assert.Equal(t, 2, cfg.Interval)
	assert.Equal(t, domain.EndAfterCount, cfg.EndMode)

	w, env = doJSON(t, r, http.MethodPost, "/api/rule/encode", map[string]any{
		"repeat":  map[string]any{"preset": "weekly", "weekdays": []int{1, 3, 5}, "endMode": "after_count", "count": 5},
		"startAt": "2025-03-03T09:00:00Z",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var encoded struct {
		Rule string `json:"rule"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &encoded))
	assert.Equal(t, "DTSTART:20250303T090000Z\nRRULE:FREQ=WEEKLY;BYDAY=MO,WE,FR;COUNT=5", encoded.Rule)
}

func TestRouter_Metrics(t *testing.T) {
	r := newTestRouter(t)
	createSeries(t, r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `planner_occurrence_changes_total{op="create",scope="series"} 1`)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
