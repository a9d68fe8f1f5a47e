// Package gateway is Torbo Base's thin HTTP binding: it exposes the four
// cross-node delegation wire endpoints, agent CRUD, IAM grant/revoke/check,
// and an event stream, so the IAAP core is demonstrable as a running
// process without pulling in the full gateway (LLM routing, bridges,
// scheduler) spec.md puts out of scope for this module.
package gateway

import (
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/torbobase/core/internal/agentregistry"
	"github.com/torbobase/core/internal/delegation"
	"github.com/torbobase/core/internal/eventbus"
	"github.com/torbobase/core/internal/iam"
	"go.uber.org/zap"
)

// Deps bundles the IAAP core components the gateway binds to HTTP. None of
// these are owned by the gateway; callers construct and close them.
type Deps struct {
	Bus        *eventbus.Bus
	Registry   *agentregistry.Registry
	IAM        *iam.Engine
	Delegation *delegation.Engine
	Tokens     *AgentTokenIssuer
	Logger     *zap.Logger

	CORSOrigins []string
	RateLimitRPS int
}

// NewRouter builds the Gin engine exposing every route named in
// SPEC_FULL.md §10's "read-only admin HTTP endpoints" and §6's wire
// endpoints.
func NewRouter(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(d.Logger))
	router.Use(PrometheusMiddleware())

	corsOrigins := d.CORSOrigins
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"http://localhost:3000"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", peerNodeIDHeader},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.Use(func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Next()
	})

	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20)
		c.Next()
	})

	router.Use(ExtractPeerNodeID())

	rps := d.RateLimitRPS
	if rps <= 0 {
		rps = 20
	}
	router.Use(RateLimiter(rps, rps*2, peerOrIPKey))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", MetricsHandler())

	agentHandler := &agentHandler{registry: d.Registry, logger: d.Logger}
	iamHandler := &iamHandler{engine: d.IAM, tokens: d.Tokens, logger: d.Logger}
	delegationHandler := &delegationHandler{engine: d.Delegation, logger: d.Logger}
	eventsHandler := &eventsHandler{bus: d.Bus, tokens: d.Tokens, logger: d.Logger}

	v1 := router.Group("/api/v1")
	{
		agentHandler.Register(v1)
		iamHandler.Register(v1)
		eventsHandler.Register(v1)
	}

	// Delegation wire endpoints live at the bare paths named in spec.md §6,
	// not under /api/v1 — peers are other Torbo Base nodes, not this
	// node's own API clients.
	delegationHandler.Register(router)

	return router
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
