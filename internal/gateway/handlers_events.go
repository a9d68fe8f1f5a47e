package gateway

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/torbobase/core/internal/eventbus"
	"go.uber.org/zap"
)

type eventsHandler struct {
	bus    *eventbus.Bus
	tokens *AgentTokenIssuer
	logger *zap.Logger
}

func (h *eventsHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/events/recent", h.recent)
	rg.GET("/events/critical", h.critical)
	// A stream subscriber's agent identity is optional: it's attached to
	// the subscription for audit logging when present, but an anonymous
	// operator dashboard is allowed to watch the stream too.
	rg.GET("/events/stream", OptionalAgentAuth(h.tokens), h.stream)
}

func (h *eventsHandler) recent(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	events := h.bus.RecentEvents(limit, c.Query("pattern"))
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (h *eventsHandler) critical(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	events, err := h.bus.CriticalEvents(c.Request.Context(), limit, c.Query("name"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// ginStreamWriter adapts gin's ResponseWriter/Flusher pair to the bus's
// StreamWriter interface, framing each write as one SSE "data:" event.
type ginStreamWriter struct {
	c *gin.Context
}

func (w *ginStreamWriter) Write(data []byte) error {
	_, err := w.c.Writer.Write(append(append([]byte("data: "), data...), '\n', '\n'))
	w.c.Writer.Flush()
	return err
}

// stream handles GET /events/stream — an SSE connection fed by the bus's
// streaming fan-out, matching events against the optional ?pattern= query
// parameter the same way RecentEvents does.
func (h *eventsHandler) stream(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	pattern := c.Query("pattern")
	if pattern == "" {
		pattern = "*"
	}
	clientID := uuid.NewString()

	fields := []zap.Field{zap.String("client_id", clientID), zap.String("pattern", pattern)}
	if claims := AgentClaimsFromCtx(c); claims != nil {
		fields = append(fields, zap.String("agent_id", claims.AgentID))
	}
	h.logger.Info("event stream subscribed", fields...)

	h.bus.AddStreamingClient(clientID, pattern, &ginStreamWriter{c: c})
	defer h.bus.RemoveStreamingClient(clientID)

	<-c.Request.Context().Done()
}
