package gateway

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/torbobase/core/internal/iam"
	"go.uber.org/zap"
)

type iamHandler struct {
	engine *iam.Engine
	tokens *AgentTokenIssuer
	logger *zap.Logger
}

func (h *iamHandler) Register(rg *gin.RouterGroup) {
	g := rg.Group("/iam")
	{
		g.POST("/register", h.register)
		g.POST("/grant", h.grant)
		g.POST("/revoke", h.revoke)
		g.DELETE("/agents/:id", h.remove)
		g.GET("/agents", h.listAgents)
		g.GET("/agents/:id", h.getAgent)
		g.POST("/token", h.issueToken)
		// check is the one call in spec.md §2's control flow that acts on
		// behalf of a specific agent ("a collaborator resolves an agent
		// identity -> IAM checks-and-logs"), so it's the one IAM route that
		// requires a bearer token and binds the checked identity to it
		// rather than trusting the request body.
		g.POST("/check", RequireAgentAuth(h.tokens), h.check)
		g.GET("/agents/:id/log", h.accessLog)
		g.GET("/agents/:id/risk", h.risk)
		g.GET("/agents/:id/anomalies", h.anomalies)
		g.POST("/prune", h.prune)
	}
}

type registerRequest struct {
	AgentID string `json:"agent_id" binding:"required"`
	Owner   string `json:"owner"`
	Purpose string `json:"purpose"`
}

func (h *iamHandler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.engine.Register(c.Request.Context(), req.AgentID, req.Owner, req.Purpose); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "registered"})
}

type grantRequest struct {
	AgentID   string   `json:"agent_id" binding:"required"`
	Resource  string   `json:"resource" binding:"required"`
	Actions   []string `json:"actions" binding:"required"`
	GrantedBy string   `json:"granted_by"`
}

func (h *iamHandler) grant(c *gin.Context) {
	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.engine.Grant(c.Request.Context(), req.AgentID, req.Resource, req.Actions, req.GrantedBy); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "granted"})
}

type revokeRequest struct {
	AgentID  string `json:"agent_id" binding:"required"`
	Resource string `json:"resource"`
}

func (h *iamHandler) revoke(c *gin.Context) {
	var req revokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var err error
	if req.Resource == "" {
		err = h.engine.RevokeAll(c.Request.Context(), req.AgentID)
	} else {
		err = h.engine.Revoke(c.Request.Context(), req.AgentID, req.Resource)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "revoked"})
}

func (h *iamHandler) remove(c *gin.Context) {
	if err := h.engine.Remove(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *iamHandler) listAgents(c *gin.Context) {
	agents, err := h.engine.ListAgents(c.Request.Context(), c.Query("owner"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents": agents})
}

func (h *iamHandler) getAgent(c *gin.Context) {
	identity, perms, err := h.engine.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"identity": identity, "permissions": perms})
}

type checkRequest struct {
	AgentID  string `json:"agent_id" binding:"required"`
	Resource string `json:"resource" binding:"required"`
	Action   string `json:"action" binding:"required"`
}

// check resolves the caller's agent identity from its bearer token
// (injected into the context by RequireAgentAuth) and requires it to
// match the agent_id the request is checking access for, rather than
// trusting an unauthenticated request body for the identity being
// checked.
func (h *iamHandler) check(c *gin.Context) {
	var req checkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	claims := AgentClaimsFromCtx(c)
	if claims == nil || claims.AgentID != req.AgentID {
		c.JSON(http.StatusForbidden, gin.H{"error": "bearer token does not authorize checks for this agent_id"})
		return
	}
	allowed := h.engine.CheckAndLog(c.Request.Context(), req.AgentID, req.Resource, req.Action)
	RecordIAMCheck(allowed)
	c.JSON(http.StatusOK, gin.H{"allowed": allowed})
}

type issueTokenRequest struct {
	AgentID string `json:"agent_id" binding:"required"`
}

// issueToken mints a bearer token for an already-registered agent
// identity, the credential that RequireAgentAuth later verifies on
// /iam/check. This is an operator/admin action (issued by whatever owns
// the agent, e.g. torboctl), not something an agent does for itself.
func (h *iamHandler) issueToken(c *gin.Context) {
	var req issueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, _, err := h.engine.Get(c.Request.Context(), req.AgentID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	token, err := h.tokens.Issue(req.AgentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *iamHandler) accessLog(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	entries := h.engine.GetAccessLog(c.Request.Context(), c.Param("id"), c.Query("resource"), limit, offset)
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *iamHandler) risk(c *gin.Context) {
	id := c.Param("id")
	score, err := h.engine.CalculateRisk(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	resp := gin.H{"risk_score": score}
	if c.Query("explain") != "" {
		findings, err := h.engine.ExplainRisk(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		resp["findings"] = findings
	}
	c.JSON(http.StatusOK, resp)
}

func (h *iamHandler) anomalies(c *gin.Context) {
	anomalies, err := h.engine.DetectAnomalies(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"anomalies": anomalies})
}

type pruneRequest struct {
	OlderThanDays int `json:"older_than_days"`
}

func (h *iamHandler) prune(c *gin.Context) {
	var req pruneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	n, err := h.engine.Prune(c.Request.Context(), req.OlderThanDays)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}
