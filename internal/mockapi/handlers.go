package mockapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
	UserType string `json:"userType"`
}

// Register handles POST /api/register
func (s *Server) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, newAPIError(http.StatusBadRequest, "invalid request body"))
	}
	if req.Name == "" || req.Email == "" || req.Phone == "" || req.Password == "" || req.UserType == "" {
		return handleError(c, newAPIError(http.StatusBadRequest, "All fields are required"))
	}
	switch req.UserType {
	case RoleRider, RoleDriver, RoleAdmin, RoleOfficer:
	default:
		return handleError(c, newAPIError(http.StatusBadRequest, "unknown userType %q", req.UserType))
	}

	u, err := s.store.register(req.Name, req.Email, req.Phone, req.Password, req.UserType)
	if err != nil {
		return handleError(c, err)
	}

	msg := "Registration successful"
	if u.Role == RoleDriver && u.Status == StatusPending {
		msg = "Driver registration submitted. Awaiting approval."
	}
	return c.JSON(http.StatusOK, map[string]any{"message": msg, "userId": u.ID})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /api/login
func (s *Server) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, newAPIError(http.StatusBadRequest, "invalid request body"))
	}

	token, u, err := s.store.login(req.Email, req.Password)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"message": "Login successful",
		"token":   token,
		"user": map[string]any{
			"id":     u.ID,
			"name":   u.Name,
			"email":  u.Email,
			"role":   u.Role,
			"status": u.Status,
		},
	})
}

// Profile handles GET /api/profile
func (s *Server) Profile(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"user": currentUser(c)})
}

// DriverProfileStatus handles GET /api/driver/profile/status
func (s *Server) DriverProfileStatus(c echo.Context) error {
	u := currentUser(c)
	if u.Role != RoleDriver {
		return handleError(c, newAPIError(http.StatusForbidden, "Only drivers have a driver profile"))
	}
	return c.JSON(http.StatusOK, map[string]any{
		"isComplete": driverProfileComplete(u),
		"status":     u.Status,
	})
}

// UpdateDriverProfile handles PUT /api/driver/profile
func (s *Server) UpdateDriverProfile(c echo.Context) error {
	u := currentUser(c)
	if u.Role != RoleDriver {
		return handleError(c, newAPIError(http.StatusForbidden, "Only drivers have a driver profile"))
	}

	var fields map[string]string
	if err := c.Bind(&fields); err != nil {
		return handleError(c, newAPIError(http.StatusBadRequest, "invalid request body"))
	}
	s.store.updateDriverProfile(u.ID, fields)
	return c.JSON(http.StatusOK, map[string]string{"message": "Profile updated successfully"})
}

type assignmentRequest struct {
	OKUID         flexID `json:"oku_id"`
	DriverID      flexID `json:"driver_id"`
	EffectiveFrom string `json:"effective_from"`
	EffectiveTo   string `json:"effective_to"`
	Notes         string `json:"notes"`
}

// CreateAssignment handles POST /api/assignments
func (s *Server) CreateAssignment(c echo.Context) error {
	u := currentUser(c)
	if u.Role != RoleAdmin && u.Role != RoleOfficer {
		return handleError(c, newAPIError(http.StatusForbidden, "Insufficient permissions"))
	}

	var req assignmentRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, newAPIError(http.StatusBadRequest, "invalid request body"))
	}

	id, err := s.store.createAssignment(Assignment{
		OKUID:         int64(req.OKUID),
		DriverID:      int64(req.DriverID),
		AssignedBy:    u.ID,
		EffectiveFrom: req.EffectiveFrom,
		EffectiveTo:   req.EffectiveTo,
		Notes:         req.Notes,
	})
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"message": "Assignment created successfully", "assignmentId": id})
}

// ListAssignments handles GET /api/assignments
func (s *Server) ListAssignments(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"assignments": s.store.assignmentsFor(currentUser(c))})
}

type bookingRequest struct {
	DriverID            flexID  `json:"driver_id"`
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
}

// CreateBooking handles POST /api/bookings
func (s *Server) CreateBooking(c echo.Context) error {
	var req bookingRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, newAPIError(http.StatusBadRequest, "invalid request body"))
	}

	id, err := s.store.createBooking(&Booking{
		OKUID:               currentUser(c).ID,
		DriverID:            int64(req.DriverID),
		BookingType:         req.BookingType,
		StartDatetime:       req.StartDatetime,
		EndDatetime:         req.EndDatetime,
		PickupLocation:      req.PickupLocation,
		PickupLat:           req.PickupLat,
		PickupLng:           req.PickupLng,
		DropoffLocation:     req.DropoffLocation,
		DropoffLat:          req.DropoffLat,
		DropoffLng:          req.DropoffLng,
		Purpose:             req.Purpose,
		SpecialInstructions: req.SpecialInstructions,
	})
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"message": "Booking created successfully", "bookingId": id})
}

// ListBookings handles GET /api/bookings
func (s *Server) ListBookings(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"bookings": s.store.bookingsFor(currentUser(c))})
}

// DriverSchedule handles GET /api/driver/:id/schedule
func (s *Server) DriverSchedule(c echo.Context) error {
	driverID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return handleError(c, newAPIError(http.StatusBadRequest, "invalid driver id"))
	}
	if d, ok := s.store.user(driverID); !ok || d.Role != RoleDriver {
		return handleError(c, newAPIError(http.StatusNotFound, "Driver not found"))
	}

	day := s.store.now()
	if q := c.QueryParam("date"); q != "" {
		day, err = time.ParseInLocation(dateLayout, q, time.Local)
		if err != nil {
			return handleError(c, newAPIError(http.StatusBadRequest, "invalid date, expected YYYY-MM-DD"))
		}
	}
	return c.JSON(http.StatusOK, map[string]any{"schedule": s.store.schedule(driverID, day)})
}

type gpsRequest struct {
	Lat       float64         `json:"lat"`
	Lng       float64         `json:"lng"`
	Speed     float64         `json:"speed"`
	Heading   float64         `json:"heading"`
	Accuracy  float64         `json:"accuracy"`
	BookingID json.RawMessage `json:"booking_id"`
}

// UpdateGPS handles POST /api/gps/update
func (s *Server) UpdateGPS(c echo.Context) error {
	u := currentUser(c)
	if u.Role != RoleDriver {
		return handleError(c, newAPIError(http.StatusForbidden, "Only drivers can update GPS"))
	}

	var req gpsRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, newAPIError(http.StatusBadRequest, "invalid request body"))
	}
	if req.BookingID == nil {
		req.BookingID = json.RawMessage("null")
	}

	s.store.addLocation(Location{
		DriverID:  u.ID,
		Lat:       req.Lat,
		Lng:       req.Lng,
		Speed:     req.Speed,
		Heading:   req.Heading,
		Accuracy:  req.Accuracy,
		BookingID: req.BookingID,
	})
	return c.JSON(http.StatusOK, map[string]string{"message": "GPS location updated successfully"})
}

// LatestLocations handles GET /api/gps/latest
func (s *Server) LatestLocations(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"locations": s.store.latestLocations(latestLocationsLimit)})
}

func handleError(c echo.Context, err error) error {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return c.JSON(apiErr.Status, map[string]string{"message": apiErr.Message})
	}
	return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
}
