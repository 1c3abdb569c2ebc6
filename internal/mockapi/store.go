package mockapi

import (
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DateTimeLayout is the wire format of booking datetimes.
const DateTimeLayout = "2006-01-02 15:04:05"

const dateLayout = "2006-01-02"

// User statuses
const (
	StatusActive   = "active"
	StatusPending  = "pending"
	StatusApproved = "approved"
)

// Role names as sent in userType.
const (
	RoleRider   = "OKU User"
	RoleDriver  = "Driver"
	RoleAdmin   = "Company Admin"
	RoleOfficer = "JKM Officer"
)

// apiError is an error with the HTTP status it maps to.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func newAPIError(status int, format string, args ...any) *apiError {
	return &apiError{Status: status, Message: fmt.Sprintf(format, args...)}
}

// flexID accepts an id sent either as a JSON number or a numeric string.
type flexID int64

func (id *flexID) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*id = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %s", data)
	}
	*id = flexID(n)
	return nil
}

// User is a registered account.
type User struct {
	ID            int64             `json:"id"`
	Name          string            `json:"name"`
	Email         string            `json:"email"`
	Phone         string            `json:"phone"`
	Role          string            `json:"userType"`
	Status        string            `json:"status"`
	DriverProfile map[string]string `json:"driverProfile,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`

	password string
}

// snapshot copies u so callers can read it without holding the store lock.
func (u *User) snapshot() *User {
	copied := *u
	copied.DriverProfile = maps.Clone(u.DriverProfile)
	return &copied
}

// Assignment links a rider to a driver for a date range.
type Assignment struct {
	ID            int64  `json:"id"`
	OKUID         int64  `json:"oku_id"`
	DriverID      int64  `json:"driver_id"`
	AssignedBy    int64  `json:"assigned_by"`
	EffectiveFrom string `json:"effective_from"`
	EffectiveTo   string `json:"effective_to"`
	Notes         string `json:"notes"`
	Status        string `json:"status"`
}

// Booking is a reserved driver time window.
type Booking struct {
	ID                  int64   `json:"id"`
	OKUID               int64   `json:"oku_id"`
	DriverID            int64   `json:"driver_id"`
	BookingType         string  `json:"booking_type"`
	StartDatetime       string  `json:"start_datetime"`
	EndDatetime         string  `json:"end_datetime"`
	PickupLocation      string  `json:"pickup_location"`
	PickupLat           float64 `json:"pickup_lat"`
	PickupLng           float64 `json:"pickup_lng"`
	DropoffLocation     string  `json:"dropoff_location"`
	DropoffLat          float64 `json:"dropoff_lat"`
	DropoffLng          float64 `json:"dropoff_lng"`
	Purpose             string  `json:"purpose"`
	SpecialInstructions string  `json:"special_instructions"`
	Status              string  `json:"status"`

	start, end time.Time
}

// Location is one GPS fix reported by a driver.
type Location struct {
	ID         int64           `json:"id"`
	DriverID   int64           `json:"driver_id"`
	DriverName string          `json:"driver_name"`
	Lat        float64         `json:"lat"`
	Lng        float64         `json:"lng"`
	Speed      float64         `json:"speed"`
	Heading    float64         `json:"heading"`
	Accuracy   float64         `json:"accuracy"`
	BookingID  json.RawMessage `json:"booking_id"`
	Timestamp  time.Time       `json:"timestamp"`
}

// store holds all mock state behind one mutex.
type store struct {
	mu sync.Mutex

	approveDrivers bool
	now            func() time.Time

	nextID      int64
	users       map[int64]*User
	emails      map[string]int64
	tokens      map[string]int64
	assignments []Assignment
	bookings    []*Booking
	locations   []Location
}

func newStore(approveDrivers bool, now func() time.Time) *store {
	return &store{
		approveDrivers: approveDrivers,
		now:            now,
		users:          make(map[int64]*User),
		emails:         make(map[string]int64),
		tokens:         make(map[string]int64),
	}
}

func (s *store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *store) register(name, email, phone, password, role string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(email)
	if _, exists := s.emails[key]; exists {
		return nil, newAPIError(http.StatusBadRequest, "Email already registered")
	}

	status := StatusActive
	if role == RoleDriver {
		status = StatusPending
		if s.approveDrivers {
			status = StatusApproved
		}
	}

	u := &User{
		ID:        s.id(),
		Name:      name,
		Email:     email,
		Phone:     phone,
		Role:      role,
		Status:    status,
		CreatedAt: s.now(),
		password:  password,
	}
	s.users[u.ID] = u
	s.emails[key] = u.ID
	return u, nil
}

func (s *store) login(email, password string) (string, *User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.emails[strings.ToLower(email)]
	if !ok || s.users[id].password != password {
		return "", nil, newAPIError(http.StatusUnauthorized, "Invalid credentials")
	}
	u := s.users[id]
	if u.Role == RoleDriver && u.Status != StatusApproved {
		return "", nil, newAPIError(http.StatusForbidden, "Your driver application is pending approval")
	}

	token := uuid.NewString()
	s.tokens[token] = u.ID
	return token, u.snapshot(), nil
}

func (s *store) authenticate(token string) (*User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.tokens[token]
	if !ok {
		return nil, false
	}
	return s.users[id].snapshot(), true
}

func (s *store) user(id int64) (*User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, false
	}
	return u.snapshot(), true
}

// requiredDriverFields must all be set for a driver profile to be complete.
var requiredDriverFields = []string{"licenseNumber", "vehicleType", "vehicleNumber", "emergencyContact", "emergencyPhone", "address"}

func (s *store) updateDriverProfile(id int64, fields map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.users[id]
	if u.DriverProfile == nil {
		u.DriverProfile = make(map[string]string)
	}
	for k, v := range fields {
		u.DriverProfile[k] = v
	}
}

func driverProfileComplete(u *User) bool {
	for _, f := range requiredDriverFields {
		if u.DriverProfile[f] == "" {
			return false
		}
	}
	return true
}

func (s *store) createAssignment(a Assignment) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rider, okRider := s.users[a.OKUID]
	driver, okDriver := s.users[a.DriverID]
	if !okRider || !okDriver {
		return 0, newAPIError(http.StatusBadRequest, "Invalid user IDs")
	}
	if rider.Role != RoleRider || driver.Role != RoleDriver {
		return 0, newAPIError(http.StatusBadRequest, "Invalid user roles")
	}
	if driver.Status != StatusApproved {
		return 0, newAPIError(http.StatusBadRequest, "Driver not approved")
	}

	a.ID = s.id()
	a.Status = StatusActive
	s.assignments = append(s.assignments, a)
	return a.ID, nil
}

// assignmentsFor returns the active assignments visible to u.
func (s *store) assignmentsFor(u *User) []Assignment {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Assignment, 0)
	for _, a := range s.assignments {
		switch u.Role {
		case RoleDriver:
			if a.DriverID != u.ID {
				continue
			}
		case RoleRider:
			if a.OKUID != u.ID {
				continue
			}
		}
		out = append(out, a)
	}
	return out
}

// createBooking rejects windows overlapping any open booking of the same driver.
func (s *store) createBooking(b *Booking) (int64, error) {
	start, err := time.ParseInLocation(DateTimeLayout, b.StartDatetime, time.Local)
	if err != nil {
		return 0, newAPIError(http.StatusBadRequest, "invalid start_datetime, expected YYYY-MM-DD HH:MM:SS")
	}
	end, err := time.ParseInLocation(DateTimeLayout, b.EndDatetime, time.Local)
	if err != nil {
		return 0, newAPIError(http.StatusBadRequest, "invalid end_datetime, expected YYYY-MM-DD HH:MM:SS")
	}
	if !end.After(start) {
		return 0, newAPIError(http.StatusBadRequest, "end_datetime must be after start_datetime")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.assigned(b.OKUID, b.DriverID) {
		return 0, newAPIError(http.StatusBadRequest, "No assignment exists with this driver")
	}
	driver, ok := s.users[b.DriverID]
	if !ok || driver.Role != RoleDriver || driver.Status != StatusApproved {
		return 0, newAPIError(http.StatusBadRequest, "Driver not available")
	}

	for _, existing := range s.bookings {
		if existing.DriverID != b.DriverID || existing.Status != StatusPending {
			continue
		}
		if start.Before(existing.end) && end.After(existing.start) {
			return 0, newAPIError(http.StatusConflict, "Driver already booked at that date/time. Please choose another slot.")
		}
	}

	b.ID = s.id()
	b.Status = StatusPending
	b.start, b.end = start, end
	s.bookings = append(s.bookings, b)
	return b.ID, nil
}

func (s *store) assigned(riderID, driverID int64) bool {
	for _, a := range s.assignments {
		if a.OKUID == riderID && a.DriverID == driverID && a.Status == StatusActive {
			return true
		}
	}
	return false
}

// bookingsFor returns bookings visible to u, latest start first.
func (s *store) bookingsFor(u *User) []Booking {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Booking, 0)
	for _, b := range s.bookings {
		switch u.Role {
		case RoleDriver:
			if b.DriverID != u.ID {
				continue
			}
		case RoleRider:
			if b.OKUID != u.ID {
				continue
			}
		}
		out = append(out, *b)
	}
	sortByStartDesc(out)
	return out
}

// schedule returns driverID's bookings starting on day, earliest first.
func (s *store) schedule(driverID int64, day time.Time) []Booking {
	s.mu.Lock()
	defer s.mu.Unlock()

	y, m, d := day.Date()
	out := make([]Booking, 0)
	for _, b := range s.bookings {
		by, bm, bd := b.start.Date()
		if b.DriverID == driverID && by == y && bm == m && bd == d {
			out = append(out, *b)
		}
	}
	return out
}

func (s *store) addLocation(l Location) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l.ID = s.id()
	l.Timestamp = s.now()
	if u, ok := s.users[l.DriverID]; ok {
		l.DriverName = u.Name
	}
	s.locations = append(s.locations, l)
}

// latestLocations returns fixes from the last hour, newest first, at most limit.
func (s *store) latestLocations(limit int) []Location {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-time.Hour)
	out := make([]Location, 0)
	for i := len(s.locations) - 1; i >= 0 && len(out) < limit; i-- {
		if s.locations[i].Timestamp.Before(cutoff) {
			continue
		}
		out = append(out, s.locations[i])
	}
	return out
}

func sortByStartDesc(bookings []Booking) {
	sort.SliceStable(bookings, func(i, j int) bool {
		return bookings[i].start.After(bookings[j].start)
	})
}
