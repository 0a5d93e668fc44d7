// Package api binds the mess operations to a gin router.
package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"messhall/internal/attendance"
	"messhall/internal/auth"
	"messhall/internal/feedback"
	"messhall/internal/httpmiddleware"
	"messhall/internal/meal"
	"messhall/internal/menu"
	"messhall/internal/metrics"
	"messhall/internal/registration"
	"messhall/internal/schedule"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Deps are the services the router dispatches to.
type Deps struct {
	Registration *registration.Service
	Menu         *menu.Service
	Feedback     *feedback.Service
	Schedule     *schedule.Service
	Scanner      *attendance.Scanner
	Ledger       *attendance.Ledger
	Aggregator   *attendance.Aggregator
	Sessions     *attendance.Sessions
	Classifier   *meal.Classifier
	Issuer       *auth.Issuer
	Metrics      *metrics.Metrics
	Limiter      *httpmiddleware.TokenBucket
	Health       map[string]HealthCheck
	CORSOrigins  []string
	// Now defaults to time.Now.
	Now func() time.Time
}

// Server holds the router and its dependencies.
type Server struct {
	Deps
	router *gin.Engine
}

// New builds the router.
func New(d Deps) *Server {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	origins := make([]string, 0, len(d.CORSOrigins))
	for _, o := range d.CORSOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	d.CORSOrigins = origins
	s := &Server{Deps: d}
	s.router = s.routes()
	return s
}

// Handler returns the http.Handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     s.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Disposition"},
		AllowCredentials: !s.anyOrigin(),
		MaxAge:           24 * time.Hour,
	}))
	r.Use(securityHeaders())
	if s.Limiter != nil {
		r.Use(s.Limiter.GinMiddleware())
	}

	r.GET("/metrics", gin.WrapH(s.Metrics.Handler()))
	r.GET("/healthz", s.healthz)

	v1 := r.Group("/v1")
	v1.POST("/students/signup", s.signup)
	v1.POST("/auth/login", s.login)
	v1.GET("/meals/current", s.currentMeal)
	v1.GET("/menu", s.weekMenu)
	v1.GET("/schedule", s.scheduleBoard)

	student := v1.Group("", auth.Require(s.Issuer, auth.RoleStudent))
	student.GET("/me", s.me)
	student.GET("/me/qrcode", s.myQRCode)
	student.POST("/feedback", s.submitFeedback)

	admin := v1.Group("", auth.Require(s.Issuer, auth.RoleAdmin))
	admin.POST("/scans", s.postScan)
	admin.GET("/scans", s.listScans)
	admin.GET("/scans/export", s.exportScans)
	admin.DELETE("/scans", s.purgeScans)
	admin.POST("/scan-sessions", s.startSession)
	admin.GET("/scan-sessions", s.listSessions)
	admin.DELETE("/scan-sessions/:id", s.stopSession)
	admin.POST("/scan-sessions/:id/scans", s.sessionScan)
	admin.GET("/headcounts", s.headCounts)
	admin.POST("/headcounts/reconcile", s.reconcile)

	admin.GET("/students", s.listStudents)
	admin.POST("/students/:id/approve", s.approveStudent)
	admin.POST("/students/:id/reject", s.rejectStudent)

	admin.PUT("/menu/:day/:meal", s.replaceMenu)
	admin.POST("/menu/:day/:meal/items", s.addMenuItem)
	admin.DELETE("/menu/:day/:meal/items/:id", s.removeMenuItem)

	admin.PUT("/schedule/timings/:day", s.setTiming)
	admin.POST("/schedule/notices", s.postNotice)
	admin.PUT("/schedule/notices/:id", s.editNotice)
	admin.DELETE("/schedule/notices/:id", s.deleteNotice)

	admin.GET("/feedback", s.listFeedback)
	admin.POST("/feedback/:id/toggle", s.toggleFeedback)

	return r
}

// anyOrigin reports a wildcard origin, which browsers refuse with credentials.
func (s *Server) anyOrigin() bool {
	for _, o := range s.CORSOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}

func (s *Server) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range s.Health {
		healthy := check(ctx) == nil
		body[name] = healthy
		if !healthy {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// securityHeaders sets the browser hardening headers.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}

func writeError(c *gin.Context, status int, err error) {
	if status >= http.StatusInternalServerError {
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// storageStatus maps errors shared by the stores.
func storageStatus(err error) int {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
