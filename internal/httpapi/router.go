package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"geoattend/internal/auth"
	"geoattend/internal/httpmiddleware"
	"geoattend/internal/identity"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// RouterConfig carries everything NewRouter wires.
type RouterConfig struct {
	Handler      *Handler
	Issuer       *auth.Issuer
	Devices      auth.DeviceVerifier
	GlobalLimit  httpmiddleware.Limiter
	LoginLimit   httpmiddleware.Limiter
	CORSOrigins  []string
	HealthChecks map[string]HealthCheck
}

// NewRouter builds the gin engine with middleware and routes.
func NewRouter(cfg RouterConfig) *gin.Engine {
	useJSONFieldNames()
	h := cfg.Handler

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestID())
	r.Use(httpmiddleware.Logger("/healthz", "/metrics"))
	r.Use(httpmiddleware.Metrics())
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	r.Use(httpmiddleware.SecurityHeaders())
	if cfg.GlobalLimit != nil {
		r.Use(httpmiddleware.RateLimit(cfg.GlobalLimit, "global"))
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		body := gin.H{"status": "ok"}
		status := http.StatusOK
		for name, check := range cfg.HealthChecks {
			ok := check(ctx)
			body[name] = ok
			if !ok {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
			}
		}
		c.JSON(status, body)
	})

	v1 := r.Group("/v1")

	authGroup := v1.Group("/auth")
	loginChain := []gin.HandlerFunc{}
	if cfg.LoginLimit != nil {
		loginChain = append(loginChain, httpmiddleware.RateLimit(cfg.LoginLimit, "login"))
	}
	authGroup.POST("/login", append(loginChain, h.Login)...)
	authGroup.POST("/onboard", append(loginChain, h.Onboard)...)
	authGroup.POST("/refresh", h.Refresh)
	authGroup.POST("/logout", auth.Optional(cfg.Issuer), h.Logout)

	secured := v1.Group("", auth.Required(cfg.Issuer, cfg.Devices))
	lecturer := auth.RequireRole(identity.RoleLecturer)

	secured.GET("/auth/me", h.Me)

	secured.GET("/courses", h.ListCourses)
	secured.POST("/courses", lecturer, h.CreateCourse)

	secured.GET("/windows/active", h.ListActiveWindows)
	secured.POST("/windows", lecturer, h.OpenWindow)
	secured.POST("/windows/:id/stop", lecturer, h.StopWindow)
	secured.GET("/windows/:id/records", lecturer, h.WindowRecords)

	secured.POST("/attendance", h.MarkAttendance)
	secured.GET("/attendance/history", h.History)

	secured.POST("/students/import", lecturer, h.ImportStudents)

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID"},
		MaxAge:        24 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cfg
}
