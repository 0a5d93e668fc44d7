package api_test

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messhall/internal/api"
	"messhall/internal/attendance"
	"messhall/internal/auth"
	"messhall/internal/feedback"
	"messhall/internal/meal"
	"messhall/internal/menu"
	"messhall/internal/registration"
	"messhall/internal/roster"
	"messhall/internal/schedule"
	"messhall/internal/store"
)

type harness struct {
	t     *testing.T
	srv   *api.Server
	now   time.Time
	admin string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ist, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	h := &harness{t: t, now: time.Date(2024, 3, 10, 8, 0, 0, 0, ist)}
	clock := func() time.Time { return h.now }

	db := store.NewMemory()
	clf := meal.Default(ist)
	ledger := attendance.NewLedger(db, clf)
	scanner := attendance.NewScanner(roster.NewLookup(db), ledger, clf)
	issuer := auth.NewIssuer("messhall", "test-key", 24*time.Hour, 48*time.Hour)
	issuer.Now = clock

	h.srv = api.New(api.Deps{
		Registration: registration.NewService(db, nil, "nitw.ac.in", registration.AdminCredentials{Email: "admin@nitw.ac.in", Password: "admin@123"}),
		Menu:         menu.NewService(db),
		Feedback:     feedback.NewService(db),
		Schedule:     schedule.NewService(db, clf),
		Scanner:      scanner,
		Ledger:       ledger,
		Aggregator:   attendance.NewAggregator(db, clf),
		Sessions:     attendance.NewSessions(scanner, clock),
		Classifier:   clf,
		Issuer:       issuer,
		Health:       map[string]api.HealthCheck{"db": db.Ping},
		Now:          clock,
	})

	var login struct {
		AccessToken string `json:"access_token"`
	}
	h.do(http.MethodPost, "/v1/auth/login", "", gin.H{"email": "admin@nitw.ac.in", "password": "admin@123", "role": "admin"}, http.StatusOK, &login)
	h.admin = login.AccessToken
	return h
}

func (h *harness) do(method, path, token string, body any, want int, out any) *httptest.ResponseRecorder {
	h.t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, req)
	require.Equal(h.t, want, w.Code, w.Body.String())
	if out != nil {
		require.NoError(h.t, json.Unmarshal(w.Body.Bytes(), out))
	}
	return w
}

// enrol signs a student up, approves them and returns their token and QR text.
func (h *harness) enrol(email, rollNo, name string) (string, string) {
	h.t.Helper()
	var created struct {
		Student roster.Student `json:"student"`
	}
	h.do(http.MethodPost, "/v1/students/signup", "", gin.H{
		"name": name, "email": email, "password": "secret1", "confirm_password": "secret1",
		"roll_no": rollNo, "branch": "CSE", "hostel": "UMH", "mess": "krishna", "phone": "9876543210",
	}, http.StatusCreated, &created)
	h.do(http.MethodPost, "/v1/students/"+created.Student.ID+"/approve", h.admin, nil, http.StatusOK, nil)

	var login struct {
		AccessToken string `json:"access_token"`
	}
	h.do(http.MethodPost, "/v1/auth/login", "", gin.H{"email": email, "password": "secret1"}, http.StatusOK, &login)

	w := h.do(http.MethodGet, "/v1/me/qrcode?format=json", login.AccessToken, nil, http.StatusOK, nil)
	return login.AccessToken, w.Body.String()
}

type scanResponse struct {
	Result  attendance.Result `json:"result"`
	Warning string            `json:"warning"`
}

func TestScanFlow(t *testing.T) {
	h := newHarness(t)
	_, payload := h.enrol("a@nitw.ac.in", "123", "A")

	var first scanResponse
	h.do(http.MethodPost, "/v1/scans", h.admin, gin.H{"payload": payload}, http.StatusCreated, &first)
	assert.Equal(t, attendance.OutcomeRecorded, first.Result.Outcome)
	assert.Equal(t, meal.Breakfast, first.Result.CurrentMeal)
	require.NotNil(t, first.Result.Record)
	assert.Equal(t, "2024-03-10", first.Result.Record.Day)

	var dup scanResponse
	h.now = h.now.Add(50 * time.Minute)
	h.do(http.MethodPost, "/v1/scans", h.admin, gin.H{"payload": payload}, http.StatusConflict, &dup)
	assert.Equal(t, attendance.OutcomeDuplicate, dup.Result.Outcome)

	h.now = time.Date(2024, 3, 10, 11, 0, 0, 0, h.now.Location())
	var idle scanResponse
	h.do(http.MethodPost, "/v1/scans", h.admin, gin.H{"payload": payload}, http.StatusUnprocessableEntity, &idle)
	assert.Equal(t, attendance.OutcomeNotMealTime, idle.Result.Outcome)

	h.do(http.MethodPost, "/v1/scans", h.admin, gin.H{"payload": "not json"}, http.StatusBadRequest, nil)
	h.do(http.MethodPost, "/v1/scans", h.admin, gin.H{"payload": `{"email":"z@nitw.ac.in","name":"Z","rollNo":"9","messName":"krishna"}`}, http.StatusNotFound, nil)
	h.do(http.MethodPost, "/v1/scans", h.admin, gin.H{"payload": strings.Replace(payload, `"name":"A"`, `"name":"B"`, 1)}, http.StatusUnprocessableEntity, nil)

	var counts struct {
		HeadCounts []attendance.HeadCount `json:"head_counts"`
	}
	h.do(http.MethodGet, "/v1/headcounts", h.admin, nil, http.StatusOK, &counts)
	assert.Equal(t, []attendance.HeadCount{{Date: "2024-03-10", Breakfast: 1, Total: 1}}, counts.HeadCounts)

	var scans struct {
		Scans []attendance.ScanRecord `json:"scans"`
	}
	h.do(http.MethodGet, "/v1/scans?meal=breakfast&from=2024-03-10&to=2024-03-10", h.admin, nil, http.StatusOK, &scans)
	assert.Len(t, scans.Scans, 1)
	h.do(http.MethodGet, "/v1/scans?meal=lunch", h.admin, nil, http.StatusOK, &scans)
	assert.Empty(t, scans.Scans)
	h.do(http.MethodGet, "/v1/scans?from=10-03-2024", h.admin, nil, http.StatusBadRequest, nil)
}

func TestScanRequiresAdmin(t *testing.T) {
	h := newHarness(t)
	token, payload := h.enrol("a@nitw.ac.in", "123", "A")
	h.do(http.MethodPost, "/v1/scans", "", gin.H{"payload": payload}, http.StatusUnauthorized, nil)
	h.do(http.MethodPost, "/v1/scans", token, gin.H{"payload": payload}, http.StatusForbidden, nil)
	h.do(http.MethodGet, "/v1/me", h.admin, nil, http.StatusForbidden, nil)
}

func TestExportAndPurge(t *testing.T) {
	h := newHarness(t)
	_, a := h.enrol("a@nitw.ac.in", "123", "A")
	_, b := h.enrol("b@nitw.ac.in", "456", "B")
	h.do(http.MethodPost, "/v1/scans", h.admin, gin.H{"payload": a}, http.StatusCreated, nil)
	h.do(http.MethodPost, "/v1/scans", h.admin, gin.H{"payload": b}, http.StatusCreated, nil)
	h.now = h.now.Add(5 * time.Hour)
	h.do(http.MethodPost, "/v1/scans", h.admin, gin.H{"payload": a}, http.StatusCreated, nil)

	w := h.do(http.MethodGet, "/v1/scans/export", h.admin, nil, http.StatusOK, nil)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "scans-2024-03-10.csv")
	rows, err := csv.NewReader(w.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "meal_type", rows[0][2])
	assert.Equal(t, "BREAKFAST", rows[1][2])
	assert.Equal(t, "LUNCH", rows[3][2])

	h.do(http.MethodDelete, "/v1/scans", h.admin, nil, http.StatusBadRequest, nil)
	h.do(http.MethodDelete, "/v1/scans?limit=1", h.admin, nil, http.StatusBadRequest, nil)

	var purged struct {
		Deleted   int                        `json:"deleted"`
		Reconcile attendance.ReconcileReport `json:"reconcile"`
	}
	h.do(http.MethodDelete, "/v1/scans?meal=lunch", h.admin, nil, http.StatusOK, &purged)
	assert.Equal(t, 1, purged.Deleted)
	assert.True(t, purged.Reconcile.Repaired)

	var counts struct {
		HeadCounts []attendance.HeadCount `json:"head_counts"`
	}
	h.do(http.MethodGet, "/v1/headcounts", h.admin, nil, http.StatusOK, &counts)
	assert.Equal(t, []attendance.HeadCount{{Date: "2024-03-10", Breakfast: 2, Total: 2}}, counts.HeadCounts)

	var rec struct {
		Reconcile attendance.ReconcileReport `json:"reconcile"`
	}
	h.do(http.MethodPost, "/v1/headcounts/reconcile", h.admin, nil, http.StatusOK, &rec)
	assert.False(t, rec.Reconcile.Repaired)
	assert.Equal(t, 2, rec.Reconcile.Scans)
}

func TestScanSessions(t *testing.T) {
	h := newHarness(t)
	_, payload := h.enrol("a@nitw.ac.in", "123", "A")

	var started struct {
		Session struct {
			ID       string `json:"id"`
			Operator string `json:"operator"`
		} `json:"session"`
	}
	h.do(http.MethodPost, "/v1/scan-sessions", h.admin, nil, http.StatusCreated, &started)
	assert.Equal(t, "admin@nitw.ac.in", started.Session.Operator)
	path := "/v1/scan-sessions/" + started.Session.ID

	h.do(http.MethodPost, path+"/scans", h.admin, gin.H{"payload": ""}, http.StatusBadRequest, nil)
	h.do(http.MethodPost, path+"/scans", h.admin, gin.H{"payload": payload}, http.StatusCreated, nil)

	h.do(http.MethodDelete, path, h.admin, nil, http.StatusNoContent, nil)
	h.do(http.MethodDelete, path, h.admin, nil, http.StatusNotFound, nil)
	h.do(http.MethodPost, path+"/scans", h.admin, gin.H{"payload": payload}, http.StatusNotFound, nil)
}

func TestSignupAndLogin(t *testing.T) {
	h := newHarness(t)
	signup := gin.H{
		"name": "A", "email": "a@gmail.com", "password": "secret1", "confirm_password": "secret1",
		"roll_no": "123", "branch": "CSE", "hostel": "UMH", "mess": "krishna", "phone": "9876543210",
	}
	var bad struct {
		Field string `json:"field"`
	}
	h.do(http.MethodPost, "/v1/students/signup", "", signup, http.StatusBadRequest, &bad)
	assert.Equal(t, "email", bad.Field)

	signup["email"] = "a@nitw.ac.in"
	var created struct {
		Student roster.Student `json:"student"`
	}
	h.do(http.MethodPost, "/v1/students/signup", "", signup, http.StatusCreated, &created)
	h.do(http.MethodPost, "/v1/students/signup", "", signup, http.StatusConflict, nil)

	var pending struct {
		Status roster.Status `json:"status"`
	}
	h.do(http.MethodPost, "/v1/auth/login", "", gin.H{"email": "a@nitw.ac.in", "password": "secret1"}, http.StatusForbidden, &pending)
	assert.Equal(t, roster.StatusPending, pending.Status)
	h.do(http.MethodPost, "/v1/auth/login", "", gin.H{"email": "a@nitw.ac.in", "password": "bad", "role": "student"}, http.StatusUnauthorized, nil)
	h.do(http.MethodPost, "/v1/auth/login", "", gin.H{"email": "a@nitw.ac.in", "password": "secret1", "role": "cook"}, http.StatusBadRequest, nil)

	var list struct {
		Students []roster.Student `json:"students"`
	}
	h.do(http.MethodGet, "/v1/students?status=pending", h.admin, nil, http.StatusOK, &list)
	require.Len(t, list.Students, 1)

	h.do(http.MethodPost, "/v1/students/"+created.Student.ID+"/reject", h.admin, nil, http.StatusOK, nil)
	h.do(http.MethodPost, "/v1/students/"+created.Student.ID+"/approve", h.admin, nil, http.StatusConflict, nil)
	h.do(http.MethodPost, "/v1/students/missing/approve", h.admin, nil, http.StatusNotFound, nil)
	h.do(http.MethodGet, "/v1/students?status=archived", h.admin, nil, http.StatusBadRequest, nil)
}

func TestQRCodePNG(t *testing.T) {
	h := newHarness(t)
	token, _ := h.enrol("a@nitw.ac.in", "123", "A")
	w := h.do(http.MethodGet, "/v1/me/qrcode", token, nil, http.StatusOK, nil)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))

	var me struct {
		Student roster.Student `json:"student"`
	}
	h.do(http.MethodGet, "/v1/me", token, nil, http.StatusOK, &me)
	assert.Equal(t, roster.StatusApproved, me.Student.Status)
}

func TestMenuAndFeedback(t *testing.T) {
	h := newHarness(t)
	token, _ := h.enrol("a@nitw.ac.in", "123", "A")

	var added struct {
		Item menu.Item `json:"item"`
	}
	h.do(http.MethodPost, "/v1/menu/monday/lunch/items", h.admin, gin.H{"name": "Dal", "is_veg": true}, http.StatusCreated, &added)
	h.do(http.MethodPost, "/v1/menu/funday/lunch/items", h.admin, gin.H{"name": "Dal"}, http.StatusBadRequest, nil)
	h.do(http.MethodPut, "/v1/menu/tuesday/dinner", h.admin, gin.H{"items": []gin.H{{"name": "Rice"}, {"name": "Curd", "is_veg": true}}}, http.StatusOK, nil)

	var week struct {
		Menu menu.Week `json:"menu"`
	}
	h.do(http.MethodGet, "/v1/menu", "", nil, http.StatusOK, &week)
	assert.Equal(t, []menu.Item{added.Item}, week.Menu["Monday"]["lunch"])
	assert.Len(t, week.Menu["Tuesday"]["dinner"], 2)
	assert.Empty(t, week.Menu["Sunday"]["breakfast"])

	h.do(http.MethodDelete, "/v1/menu/monday/lunch/items/"+added.Item.ID, h.admin, nil, http.StatusNoContent, nil)
	h.do(http.MethodDelete, "/v1/menu/monday/lunch/items/"+added.Item.ID, h.admin, nil, http.StatusNotFound, nil)

	var fb struct {
		Feedback feedback.Entry `json:"feedback"`
	}
	h.do(http.MethodPost, "/v1/feedback", token, gin.H{"category": "hygiene", "message": "wet plates"}, http.StatusCreated, &fb)
	assert.Equal(t, "A", fb.Feedback.StudentName)
	h.do(http.MethodPost, "/v1/feedback", token, gin.H{"category": "weather", "message": "hot"}, http.StatusBadRequest, nil)

	h.do(http.MethodPost, "/v1/feedback/"+fb.Feedback.ID+"/toggle", h.admin, nil, http.StatusOK, &fb)
	assert.Equal(t, feedback.StatusResolved, fb.Feedback.Status)
	h.do(http.MethodPost, "/v1/feedback/missing/toggle", h.admin, nil, http.StatusNotFound, nil)

	var list struct {
		Feedback []feedback.Entry `json:"feedback"`
	}
	h.do(http.MethodGet, "/v1/feedback?status=resolved", h.admin, nil, http.StatusOK, &list)
	assert.Len(t, list.Feedback, 1)
	h.do(http.MethodGet, "/v1/feedback?status=lost", h.admin, nil, http.StatusBadRequest, nil)
}

func TestPublicEndpoints(t *testing.T) {
	h := newHarness(t)
	var current struct {
		CurrentMeal meal.Type `json:"current_meal"`
		Day         string    `json:"day"`
		Timezone    string    `json:"timezone"`
		Windows     []gin.H   `json:"windows"`
	}
	h.do(http.MethodGet, "/v1/meals/current", "", nil, http.StatusOK, &current)
	assert.Equal(t, meal.Breakfast, current.CurrentMeal)
	assert.Equal(t, "Asia/Kolkata", current.Timezone)
	assert.Len(t, current.Windows, 3)

	w := h.do(http.MethodGet, "/healthz", "", nil, http.StatusOK, nil)
	assert.Contains(t, w.Body.String(), `"db":true`)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	w = h.do(http.MethodGet, "/metrics", "", nil, http.StatusOK, nil)
	assert.Contains(t, w.Body.String(), "messhall_headcount_stale_total 0")
}

func TestCORSCredentials(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name       string
		origins    []string
		wantOrigin string
		wantCreds  string
	}{
		{name: "wildcard", origins: nil, wantOrigin: "*", wantCreds: ""},
		{name: "explicit", origins: []string{" https://mess.nitw.ac.in "}, wantOrigin: "https://mess.nitw.ac.in", wantCreds: "true"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := api.New(api.Deps{CORSOrigins: tc.origins})
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			req.Header.Set("Origin", "https://mess.nitw.ac.in")
			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, req)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tc.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tc.wantCreds, w.Header().Get("Access-Control-Allow-Credentials"))
		})
	}
}

func TestScheduleBoard(t *testing.T) {
	h := newHarness(t)
	token, _ := h.enrol("a@nitw.ac.in", "123", "A")

	var timing struct {
		Timing schedule.Timing `json:"timing"`
	}
	h.do(http.MethodPut, "/v1/schedule/timings/sunday", h.admin, gin.H{"breakfast": "07:30-09:30"}, http.StatusOK, &timing)
	assert.Equal(t, "Sunday", timing.Timing.Day)
	h.do(http.MethodPut, "/v1/schedule/timings/funday", h.admin, gin.H{"breakfast": "07:30-09:30"}, http.StatusBadRequest, nil)
	h.do(http.MethodPut, "/v1/schedule/timings/sunday", token, gin.H{"breakfast": "x"}, http.StatusForbidden, nil)

	var posted struct {
		Notice schedule.Notice `json:"notice"`
	}
	h.do(http.MethodPost, "/v1/schedule/notices", h.admin, gin.H{"type": "important", "message": "Cultural night dinner", "date": "2024-03-23"}, http.StatusCreated, &posted)
	var bad struct {
		Field string `json:"field"`
	}
	h.do(http.MethodPost, "/v1/schedule/notices", h.admin, gin.H{"type": "urgent", "message": "x", "date": "2024-03-23"}, http.StatusBadRequest, &bad)
	assert.Equal(t, "severity", bad.Field)

	path := "/v1/schedule/notices/" + posted.Notice.ID
	h.do(http.MethodPut, path, h.admin, gin.H{"type": "info", "message": "Moved to Sunday", "date": "2024-03-24"}, http.StatusOK, &posted)
	assert.Equal(t, schedule.SeverityInfo, posted.Notice.Severity)

	var board schedule.Board
	h.do(http.MethodGet, "/v1/schedule", "", nil, http.StatusOK, &board)
	require.Len(t, board.Timings, 7)
	assert.Equal(t, "07:30-09:30", board.Timings[6].Breakfast)
	assert.Equal(t, "12:00-15:00", board.Timings[6].Lunch)
	require.Len(t, board.Notices, 1)
	assert.Equal(t, "Moved to Sunday", board.Notices[0].Message)

	h.do(http.MethodDelete, path, h.admin, nil, http.StatusNoContent, nil)
	h.do(http.MethodDelete, path, h.admin, nil, http.StatusNotFound, nil)
}
