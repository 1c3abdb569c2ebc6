package mockapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func call(t *testing.T, s *Server, method, path, token string, body any) (int, map[string]any, http.Header) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec.Code, out, rec.Header()
}

func register(t *testing.T, s *Server, email, role string) int64 {
	t.Helper()
	code, body, _ := call(t, s, http.MethodPost, "/api/register", "", map[string]string{
		"name": "Test " + role, "email": email, "phone": "0123456789", "password": "password123", "userType": role,
	})
	require.Equal(t, http.StatusOK, code, body)
	return int64(body["userId"].(float64))
}

func login(t *testing.T, s *Server, email string) string {
	t.Helper()
	code, body, _ := call(t, s, http.MethodPost, "/api/login", "", map[string]string{"email": email, "password": "password123"})
	require.Equal(t, http.StatusOK, code, body)
	return body["token"].(string)
}

func TestAuth_MissingVersusInvalidToken(t *testing.T) {
	s := New(nil)

	code, body, _ := call(t, s, http.MethodGet, "/api/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Access token required", body["message"])

	code, body, _ = call(t, s, http.MethodGet, "/api/profile", "invalid.jwt.token", nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "Invalid token", body["message"])
}

func TestRegister(t *testing.T) {
	s := New(nil)

	register(t, s, "a@example.com", RoleRider)

	code, body, _ := call(t, s, http.MethodPost, "/api/register", "", map[string]string{
		"name": "Again", "email": "A@example.com", "phone": "1", "password": "x", "userType": RoleRider,
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Email already registered", body["message"])

	code, body, _ = call(t, s, http.MethodPost, "/api/register", "", map[string]string{"email": "b@example.com"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "All fields are required", body["message"])
}

func TestLogin(t *testing.T) {
	t.Run("unknown email", func(t *testing.T) {
		s := New(nil)
		code, _, _ := call(t, s, http.MethodPost, "/api/login", "", map[string]string{"email": "nobody@example.com", "password": "x"})
		assert.Equal(t, http.StatusUnauthorized, code)
	})

	t.Run("pending driver", func(t *testing.T) {
		s := New(&Config{RequireDriverApproval: true})
		register(t, s, "d@example.com", RoleDriver)
		code, body, _ := call(t, s, http.MethodPost, "/api/login", "", map[string]string{"email": "d@example.com", "password": "password123"})
		assert.Equal(t, http.StatusForbidden, code)
		assert.Contains(t, body["message"], "pending approval")
	})

	t.Run("profile after login", func(t *testing.T) {
		s := New(nil)
		register(t, s, "r@example.com", RoleRider)
		token := login(t, s, "r@example.com")

		code, body, _ := call(t, s, http.MethodGet, "/api/profile", token, nil)
		require.Equal(t, http.StatusOK, code)
		user := body["user"].(map[string]any)
		assert.Equal(t, "Test OKU User", user["name"])
		assert.NotContains(t, user, "password")
	})
}

func TestCORSPreflight(t *testing.T) {
	s := New(nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/login", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type, Authorization")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Methods"))
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Headers"))
}

type world struct {
	s                   *Server
	rider, driver       int64
	riderTok, driverTok string
	adminTok            string
}

func newWorld(t *testing.T) *world {
	t.Helper()
	s := New(&Config{Now: func() time.Time { return time.Date(2026, 3, 2, 8, 0, 0, 0, time.Local) }})
	w := &world{s: s}
	w.rider = register(t, s, "rider@example.com", RoleRider)
	w.driver = register(t, s, "driver@example.com", RoleDriver)
	register(t, s, "admin@example.com", RoleAdmin)
	w.riderTok = login(t, s, "rider@example.com")
	w.driverTok = login(t, s, "driver@example.com")
	w.adminTok = login(t, s, "admin@example.com")
	return w
}

func (w *world) assign(t *testing.T) {
	t.Helper()
	code, body, _ := call(t, w.s, http.MethodPost, "/api/assignments", w.adminTok, map[string]any{
		"oku_id": w.rider, "driver_id": w.driver, "effective_from": "2026-03-02", "effective_to": "2026-04-01", "notes": "n",
	})
	require.Equal(t, http.StatusOK, code, body)
}

func (w *world) book(t *testing.T, start, end string) int {
	t.Helper()
	code, _, _ := call(t, w.s, http.MethodPost, "/api/bookings", w.riderTok, map[string]any{
		"driver_id": w.driver, "booking_type": "daily", "start_datetime": start, "end_datetime": end,
	})
	return code
}

func TestAssignments(t *testing.T) {
	w := newWorld(t)

	code, _, _ := call(t, w.s, http.MethodPost, "/api/assignments", w.riderTok, map[string]any{"oku_id": w.rider, "driver_id": w.driver})
	assert.Equal(t, http.StatusForbidden, code, "riders cannot create assignments")

	code, _, _ = call(t, w.s, http.MethodPost, "/api/assignments", w.adminTok, map[string]any{"oku_id": w.driver, "driver_id": w.rider})
	assert.Equal(t, http.StatusBadRequest, code, "roles swapped")

	// ids may arrive as strings
	code, _, _ = call(t, w.s, http.MethodPost, "/api/assignments", w.adminTok, map[string]any{"oku_id": "1", "driver_id": "2"})
	assert.Equal(t, http.StatusOK, code)

	code, body, _ := call(t, w.s, http.MethodGet, "/api/assignments", w.riderTok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["assignments"], 1)
}

func TestBookingConflicts(t *testing.T) {
	w := newWorld(t)

	assert.Equal(t, http.StatusBadRequest, w.book(t, "2026-03-02 10:00:00", "2026-03-02 12:00:00"), "no assignment yet")

	w.assign(t)
	assert.Equal(t, http.StatusOK, w.book(t, "2026-03-02 10:00:00", "2026-03-02 12:00:00"))
	assert.Equal(t, http.StatusConflict, w.book(t, "2026-03-02 09:00:00", "2026-03-02 11:00:00"))
	assert.Equal(t, http.StatusOK, w.book(t, "2026-03-02 13:00:00", "2026-03-02 14:00:00"))
	assert.Equal(t, http.StatusOK, w.book(t, "2026-03-02 12:00:00", "2026-03-02 13:00:00"), "touching windows do not overlap")
	assert.Equal(t, http.StatusBadRequest, w.book(t, "2026-03-02T15:00:00", "2026-03-02 16:00:00"))

	code, body, _ := call(t, w.s, http.MethodGet, "/api/bookings", w.riderTok, nil)
	require.Equal(t, http.StatusOK, code)
	bookings := body["bookings"].([]any)
	require.Len(t, bookings, 3)
	assert.Equal(t, "2026-03-02 13:00:00", bookings[0].(map[string]any)["start_datetime"])

	code, body, _ = call(t, w.s, http.MethodGet, "/api/driver/2/schedule?date=2026-03-02", w.riderTok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["schedule"], 3)

	code, body, _ = call(t, w.s, http.MethodGet, "/api/driver/2/schedule?date=2026-03-03", w.riderTok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["schedule"])

	code, _, _ = call(t, w.s, http.MethodGet, "/api/driver/1/schedule", w.riderTok, nil)
	assert.Equal(t, http.StatusNotFound, code, "user 1 is not a driver")
}

func TestDriverProfile(t *testing.T) {
	w := newWorld(t)

	code, body, _ := call(t, w.s, http.MethodGet, "/api/driver/profile/status", w.driverTok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["isComplete"])
	assert.Equal(t, StatusApproved, body["status"])

	code, _, _ = call(t, w.s, http.MethodPut, "/api/driver/profile", w.driverTok, map[string]string{
		"licenseNumber": "D123456789", "vehicleType": "MPV", "vehicleNumber": "ABC1234",
		"emergencyContact": "c", "emergencyPhone": "p", "address": "a",
	})
	require.Equal(t, http.StatusOK, code)

	_, body, _ = call(t, w.s, http.MethodGet, "/api/driver/profile/status", w.driverTok, nil)
	assert.Equal(t, true, body["isComplete"])

	code, _, _ = call(t, w.s, http.MethodGet, "/api/driver/profile/status", w.riderTok, nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestGPS(t *testing.T) {
	w := newWorld(t)

	code, _, _ := call(t, w.s, http.MethodPost, "/api/gps/update", w.riderTok, map[string]any{"lat": 1.0})
	assert.Equal(t, http.StatusForbidden, code)

	code, _, _ = call(t, w.s, http.MethodPost, "/api/gps/update", w.driverTok, map[string]any{
		"lat": 5.3307, "lng": 103.1324, "speed": 45.5, "heading": 180.0, "accuracy": 5.0, "booking_id": nil,
	})
	require.Equal(t, http.StatusOK, code)

	code, body, _ := call(t, w.s, http.MethodGet, "/api/gps/latest", w.riderTok, nil)
	require.Equal(t, http.StatusOK, code)
	locations := body["locations"].([]any)
	require.Len(t, locations, 1)
	loc := locations[0].(map[string]any)
	assert.InDelta(t, 5.3307, loc["lat"], 1e-9)
	assert.Equal(t, "Test Driver", loc["driver_name"])
	assert.Nil(t, loc["booking_id"])
}
