// Package mockapi is an in-memory implementation of the transport API's wire
// contract, used to exercise the contract runner without the real service.
package mockapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const latestLocationsLimit = 100

// Config holds mock server options
type Config struct {
	// RequireDriverApproval keeps new drivers pending, so their login is 403
	RequireDriverApproval bool
	// AllowOrigins defaults to any origin
	AllowOrigins []string
	// Now overrides the clock used for GPS timestamps and the default schedule date
	Now func() time.Time
}

// Server wraps the Echo server and its in-memory state
type Server struct {
	echo  *echo.Echo
	store *store
}

// New creates a mock server
func New(cfg *Config) *Server {
	if cfg == nil {
		cfg = &Config{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:  e,
		store: newStore(!cfg.RequireDriverApproval, now),
	}

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			slog.Debug("mock request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization, echo.HeaderOrigin, echo.HeaderAccept},
	}))
	e.Use(middleware.BodyLimit("1M"))

	// Public routes
	e.POST("/api/register", s.Register)
	e.POST("/api/login", s.Login)

	// Authenticated routes
	api := e.Group("/api", AuthMiddleware(s))
	api.GET("/profile", s.Profile)
	api.GET("/driver/profile/status", s.DriverProfileStatus)
	api.PUT("/driver/profile", s.UpdateDriverProfile)
	api.GET("/driver/:id/schedule", s.DriverSchedule)
	api.POST("/assignments", s.CreateAssignment)
	api.GET("/assignments", s.ListAssignments)
	api.POST("/bookings", s.CreateBooking)
	api.GET("/bookings", s.ListBookings)
	api.POST("/gps/update", s.UpdateGPS)
	api.GET("/gps/latest", s.LatestLocations)

	return s
}

// Start starts the HTTP server on the given address
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP implements the http.Handler interface, allowing Server to be used with httptest
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
