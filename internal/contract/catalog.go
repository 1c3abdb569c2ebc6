package contract

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"okucheck/config"
	"okucheck/internal/apiclient"
)

// API paths of the service under test.
const (
	pathRegister        = "/api/register"
	pathLogin           = "/api/login"
	pathProfile         = "/api/profile"
	pathDriverProfile   = "/api/driver/profile"
	pathDriverStatus    = "/api/driver/profile/status"
	pathAssignments     = "/api/assignments"
	pathBookings        = "/api/bookings"
	pathDriverSchedule  = "/api/driver/%s/schedule"
	pathGPSUpdate       = "/api/gps/update"
	pathGPSLatest       = "/api/gps/latest"
	bookingTimeLayout   = "2006-01-02 15:04:05"
	dateLayout          = "2006-01-02"
	defaultPassword     = "password123"
	malformedBearerText = "invalid.jwt.token"
)

// Fixture holds the per-run inputs of the scenario table.
type Fixture struct {
	// Now anchors booking windows and assignment dates
	Now time.Time
	// Tag makes registration emails unique across runs
	Tag string
	// Origin is sent with the CORS preflight
	Origin string
}

// NewFixture returns a fixture anchored at now with a random tag.
// The tag combines the unix time with a UUID so rapid repeated runs never collide.
func NewFixture(now time.Time, origin string) Fixture {
	return Fixture{
		Now:    now,
		Tag:    fmt.Sprintf("%d_%s", now.Unix(), strings.ReplaceAll(uuid.NewString(), "-", "")),
		Origin: origin,
	}
}

// Email returns the generated registration email for role.
func (f Fixture) Email(role Role) string {
	prefix := map[Role]string{
		RoleRider:   "oku",
		RoleDriver:  "driver",
		RoleAdmin:   "admin",
		RoleOfficer: "jkm",
	}[role]
	return fmt.Sprintf("%s_test_%s@example.com", prefix, f.Tag)
}

// Catalog returns the ordered scenario table for suite.
// "core" is health, registration, login, profile, token and CORS checks;
// "full" appends driver onboarding, assignments, bookings, schedule and GPS.
func Catalog(f Fixture, suite string) []Step {
	steps := coreSteps(f)
	if suite == config.SuiteFull {
		steps = append(steps, extendedSteps(f)...)
	}
	return steps
}

func coreSteps(f Fixture) []Step {
	steps := []Step{healthStep()}
	for i, role := range RegistrationRoles {
		steps = append(steps, registerStep(f, role, i))
	}
	steps = append(steps, invalidLoginStep())
	for _, role := range RegistrationRoles {
		steps = append(steps, loginStep(role))
	}
	return append(steps,
		profileStep(),
		profileWithoutTokenStep(),
		malformedTokenStep(),
		corsStep(f),
	)
}

func extendedSteps(f Fixture) []Step {
	return []Step{
		driverStatusStep(),
		driverProfileUpdateStep(),
		createAssignmentStep(f),
		listAssignmentsStep(),
		createBookingStep(f, "Create Booking", 2*time.Hour, 4*time.Hour, http.StatusOK),
		listBookingsStep(),
		createBookingStep(f, "Booking Conflict Detection", 1*time.Hour, 3*time.Hour, http.StatusConflict),
		createBookingStep(f, "Create Non-Overlapping Booking", 5*time.Hour, 6*time.Hour, http.StatusOK),
		driverScheduleStep(f),
		gpsUpdateStep(),
		gpsLatestStep(),
	}
}

func healthStep() Step {
	return Step{
		Name:   "Server Health Check",
		Expect: []int{http.StatusUnauthorized},
		Request: func(Session) apiclient.Request {
			return apiclient.Request{Method: http.MethodGet, Path: pathProfile}
		},
		Check: func(_ Session, resp *apiclient.Response) (string, error) {
			if err := expectStatus(resp, http.StatusUnauthorized); err != nil {
				return "", err
			}
			return "server is running and responding with correct auth error", nil
		},
	}
}

func registerStep(f Fixture, role Role, index int) Step {
	account := Account{
		Role:     role,
		Name:     "Test " + string(role),
		Email:    f.Email(role),
		Phone:    fmt.Sprintf("01234567%02d", 89+index),
		Password: defaultPassword,
	}

	return Step{
		Name:   "Register " + string(role),
		Expect: []int{http.StatusOK},
		Request: func(Session) apiclient.Request {
			return apiclient.Request{
				Method: http.MethodPost,
				Path:   pathRegister,
				Body: map[string]string{
					"name":     account.Name,
					"email":    account.Email,
					"phone":    account.Phone,
					"password": account.Password,
					"userType": string(role),
				},
			}
		},
		Check: func(_ Session, resp *apiclient.Response) (string, error) {
			if err := expectStatus(resp, http.StatusOK); err != nil {
				return "", err
			}
			if _, err := requireField(resp, "userId"); err != nil {
				return "", err
			}
			return messageOr(resp, "Registration successful"), nil
		},
		Capture: func(s Session, resp *apiclient.Response) Session {
			a := account
			a.UserID = resp.Get("userId").String()
			return s.WithAccount(a)
		},
	}
}

func invalidLoginStep() Step {
	return Step{
		Name:   "Invalid Login",
		Expect: []int{http.StatusUnauthorized},
		Request: func(Session) apiclient.Request {
			return apiclient.Request{
				Method: http.MethodPost,
				Path:   pathLogin,
				Body: map[string]string{
					"email":    "nonexistent@example.com",
					"password": "wrongpassword",
				},
			}
		},
		Check: func(_ Session, resp *apiclient.Response) (string, error) {
			if err := expectStatus(resp, http.StatusUnauthorized); err != nil {
				return "", err
			}
			return "correctly rejected invalid credentials", nil
		},
	}
}

func loginStep(role Role) Step {
	expect := []int{http.StatusOK}
	if role == RoleDriver {
		// drivers may be held for approval
		expect = append(expect, http.StatusForbidden)
	}

	return Step{
		Name:     "Login " + string(role),
		Expect:   expect,
		Requires: accountOf(role),
		Request: func(s Session) apiclient.Request {
			a, _ := s.Account(role)
			return apiclient.Request{
				Method: http.MethodPost,
				Path:   pathLogin,
				Body: map[string]string{
					"email":    a.Email,
					"password": a.Password,
				},
			}
		},
		Check: func(_ Session, resp *apiclient.Response) (string, error) {
			if role == RoleDriver && resp.StatusCode == http.StatusForbidden {
				return "driver login correctly blocked - pending approval", nil
			}
			if err := expectStatus(resp, http.StatusOK); err != nil {
				return "", err
			}
			if _, err := requireField(resp, "token"); err != nil {
				return "", err
			}
			name := resp.Get("user.name").String()
			if name == "" {
				name = "Unknown"
			}
			return fmt.Sprintf("login successful for %s: %s", role, name), nil
		},
		Capture: func(s Session, resp *apiclient.Response) Session {
			if resp.StatusCode != http.StatusOK {
				return s
			}
			user := resp.Get("user")
			return s.WithCredentials(role, Credentials{
				Token:    resp.Get("token").String(),
				UserID:   user.Get("id").String(),
				UserName: user.Get("name").String(),
				User:     []byte(user.Raw),
			})
		},
	}
}

func profileStep() Step {
	return Step{
		Name:     "Profile Route (Protected)",
		Expect:   []int{http.StatusOK},
		Requires: tokenOf(RoleRider),
		Request: func(s Session) apiclient.Request {
			return apiclient.Request{Method: http.MethodGet, Path: pathProfile, Token: s.Token(RoleRider)}
		},
		Check: func(_ Session, resp *apiclient.Response) (string, error) {
			if err := expectStatus(resp, http.StatusOK); err != nil {
				return "", err
			}
			user, err := requireField(resp, "user")
			if err != nil {
				return "", err
			}
			name := user.Get("name").String()
			if name == "" {
				name = "Unknown"
			}
			return "profile retrieved for user: " + name, nil
		},
	}
}

func profileWithoutTokenStep() Step {
	return Step{
		Name:   "Protected Route Without Token",
		Expect: []int{http.StatusUnauthorized},
		Request: func(Session) apiclient.Request {
			return apiclient.Request{Method: http.MethodGet, Path: pathProfile}
		},
		Check: func(_ Session, resp *apiclient.Response) (string, error) {
			if err := expectStatus(resp, http.StatusUnauthorized); err != nil {
				return "", err
			}
			return "correctly rejected request without token", nil
		},
	}
}

func malformedTokenStep() Step {
	return Step{
		Name:   "JWT Token Validation",
		Expect: []int{http.StatusForbidden},
		Request: func(Session) apiclient.Request {
			return apiclient.Request{Method: http.MethodGet, Path: pathProfile, Token: malformedBearerText}
		},
		Check: func(_ Session, resp *apiclient.Response) (string, error) {
			if err := expectStatus(resp, http.StatusForbidden); err != nil {
				return "", err
			}
			return "invalid token correctly rejected", nil
		},
	}
}

// corsHeaders must be present (any value) on the preflight response.
var corsHeaders = []string{
	"Access-Control-Allow-Origin",
	"Access-Control-Allow-Methods",
	"Access-Control-Allow-Headers",
}

func corsStep(f Fixture) Step {
	return Step{
		Name:   "CORS Configuration",
		Expect: []int{http.StatusOK, http.StatusNoContent},
		Request: func(Session) apiclient.Request {
			return apiclient.Request{
				Method: http.MethodOptions,
				Path:   pathLogin,
				Header: http.Header{
					"Origin":                         {f.Origin},
					"Access-Control-Request-Method":  {http.MethodPost},
					"Access-Control-Request-Headers": {"Content-Type, Authorization"},
				},
			}
		},
		Check: func(_ Session, resp *apiclient.Response) (string, error) {
			if err := expectStatus(resp, http.StatusOK, http.StatusNoContent); err != nil {
				return "", err
			}
			var missing []string
			for _, h := range corsHeaders {
				if resp.Header.Get(h) == "" {
					missing = append(missing, h)
				}
			}
			if len(missing) > 0 {
				return "", assertionf("missing CORS headers: %s", strings.Join(missing, ", "))
			}
			return "CORS headers present", nil
		},
	}
}

func driverStatusStep() Step {
	return Step{
		Name:     "Driver Profile Status",
		Expect:   []int{http.StatusOK},
		Requires: tokenOf(RoleDriver),
		Request: func(s Session) apiclient.Request {
			return apiclient.Request{Method: http.MethodGet, Path: pathDriverStatus, Token: s.Token(RoleDriver)}
		},
		Check: func(_ Session, resp *apiclient.Response) (string, error) {
			if err := expectStatus(resp, http.StatusOK); err != nil {
				return "", err
			}
			if err := requireJSON(resp); err != nil {
				return "", err
			}
			status := resp.Get("status").String()
			if status == "" {
				status = "unknown"
			}
			return fmt.Sprintf("profile status retrieved: complete=%t, status=%s", resp.Get("isComplete").Bool(), status), nil
		},
	}
}

func driverProfileUpdateStep() Step {
	return Step{
		Name:     "Driver Profile Update",
		Expect:   []int{http.StatusOK},
		Requires: tokenOf(RoleDriver),
		Request: func(s Session) apiclient.Request {
			return apiclient.Request{
				Method: http.MethodPut,
				Path:   pathDriverProfile,
				Token:  s.Token(RoleDriver),
				Body: map[string]string{
					"licenseNumber":    "D123456789",
					"vehicleType":      "MPV",
					"vehicleNumber":    "ABC1234",
					"vehicleFeatures":  `["wheelchair_accessible", "air_conditioning"]`,
					"experience":       "5 years",
					"languages":        "English, Malay",
					"emergencyContact": "Emergency Contact",
					"emergencyPhone":   "0123456789",
					"address":          "Test Address",
				},
			}
		},
		Check: func(_ Session, resp *apiclient.Response) (string, error) {
			if err := expectStatus(resp, http.StatusOK); err != nil {
				return "", err
			}
			return messageOr(resp, "Profile updated successfully"), nil
		},
	}
}

func createAssignmentStep(f Fixture) Step {
	return Step{
		Name:     "Create Assignment",
		Expect:   []int{http.StatusOK},
		Requires: requireAll(tokenOf(RoleAdmin), userIDOf(RoleRider), userIDOf(RoleDriver)),
		Request: func(s Session) apiclient.Request {
			return apiclient.Request{
				Method: http.MethodPost,
				Path:   pathAssignments,
				Token:  s.Token(RoleAdmin),
				Body: map[string]any{
					"oku_id":         idValue(s.UserID(RoleRider)),
					"driver_id":      idValue(s.UserID(RoleDriver)),
					"effective_from": f.Now.Format(dateLayout),
					"effective_to":   f.Now.AddDate(0, 0, 30).Format(dateLayout),
					"notes":          "Test assignment",
				},
			}
		},
		Check: func(_ Session, resp *apiclient.Response) (string, error) {
			if err := expectStatus(resp, http.StatusOK); err != nil {
				return "", err
			}
			return messageOr(resp, "Assignment created successfully"), nil
		},
	}
}

func listAssignmentsStep() Step {
	return listStep("Get Assignments", pathAssignments, "assignments", RoleRider, nil)
}

func listBookingsStep() Step {
	return listStep("Get Bookings", pathBookings, "bookings", RoleRider, nil)
}

func gpsLatestStep() Step {
	return listStep("Get GPS Locations", pathGPSLatest, "locations", RoleDriver, nil)
}

func driverScheduleStep(f Fixture) Step {
	step := listStep("Driver Schedule", "", "schedule", RoleRider, url.Values{"date": {f.Now.Format(dateLayout)}})
	step.Requires = requireAll(tokenOf(RoleRider), userIDOf(RoleDriver))
	build := step.Request
	step.Request = func(s Session) apiclient.Request {
		req := build(s)
		req.Path = fmt.Sprintf(pathDriverSchedule, url.PathEscape(s.UserID(RoleDriver)))
		return req
	}
	return step
}

// listStep GETs path as role and expects a list under field.
func listStep(name, path, field string, role Role, query url.Values) Step {
	return Step{
		Name:     name,
		Expect:   []int{http.StatusOK},
		Requires: tokenOf(role),
		Request: func(s Session) apiclient.Request {
			return apiclient.Request{Method: http.MethodGet, Path: path, Query: query, Token: s.Token(role)}
		},
		Check: func(_ Session, resp *apiclient.Response) (string, error) {
			if err := expectStatus(resp, http.StatusOK); err != nil {
				return "", err
			}
			n, err := requireArray(resp, field)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("retrieved %d %s", n, field), nil
		},
	}
}

// createBookingStep books the driver for [now+from, now+to] and expects status.
func createBookingStep(f Fixture, name string, from, to time.Duration, status int) Step {
	return Step{
		Name:     name,
		Expect:   []int{status},
		Requires: requireAll(tokenOf(RoleRider), userIDOf(RoleDriver)),
		Request: func(s Session) apiclient.Request {
			return apiclient.Request{
				Method: http.MethodPost,
				Path:   pathBookings,
				Token:  s.Token(RoleRider),
				Body: map[string]any{
					"driver_id":            idValue(s.UserID(RoleDriver)),
					"booking_type":         "daily",
					"start_datetime":       f.Now.Add(from).Format(bookingTimeLayout),
					"end_datetime":         f.Now.Add(to).Format(bookingTimeLayout),
					"pickup_location":      "Test Pickup Location",
					"pickup_lat":           5.3307,
					"pickup_lng":           103.1324,
					"dropoff_location":     "Test Dropoff Location",
					"dropoff_lat":          5.3408,
					"dropoff_lng":          103.1425,
					"purpose":              "Medical appointment",
					"special_instructions": "Test booking",
				},
			}
		},
		Check: func(_ Session, resp *apiclient.Response) (string, error) {
			if err := expectStatus(resp, status); err != nil {
				return "", err
			}
			if status == http.StatusConflict {
				return "correctly detected booking conflict", nil
			}
			return messageOr(resp, "Booking created successfully"), nil
		},
		Capture: func(s Session, resp *apiclient.Response) Session {
			if status != http.StatusOK || s.BookingID() != "" {
				return s
			}
			for _, path := range []string{"bookingId", "booking.id", "id"} {
				if v := resp.Get(path); v.Exists() && v.Type != gjson.Null {
					return s.WithBooking(v.String())
				}
			}
			return s
		},
	}
}

func gpsUpdateStep() Step {
	return Step{
		Name:     "GPS Update",
		Expect:   []int{http.StatusOK},
		Requires: tokenOf(RoleDriver),
		Request: func(s Session) apiclient.Request {
			var booking any
			if id := s.BookingID(); id != "" {
				booking = idValue(id)
			}
			return apiclient.Request{
				Method: http.MethodPost,
				Path:   pathGPSUpdate,
				Token:  s.Token(RoleDriver),
				Body: map[string]any{
					"lat":        5.3307,
					"lng":        103.1324,
					"speed":      45.5,
					"heading":    180.0,
					"accuracy":   5.0,
					"booking_id": booking,
				},
			}
		},
		Check: func(_ Session, resp *apiclient.Response) (string, error) {
			if err := expectStatus(resp, http.StatusOK); err != nil {
				return "", err
			}
			return messageOr(resp, "GPS location updated successfully"), nil
		},
	}
}

// messageOr returns the service's message or fallback.
func messageOr(resp *apiclient.Response, fallback string) string {
	if m := resp.Message(); m != "" {
		return m
	}
	return fallback
}
