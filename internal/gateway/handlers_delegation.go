package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/torbobase/core/internal/delegation"
	"go.uber.org/zap"
)

// delegationHandler binds the four wire endpoints named in spec.md §6
// (capabilities, submit, result, community identity) plus two local-only
// entry points for this node's own operators/CLI: "delegate a task" and
// "deliver a result" for an accepted inbound task.
type delegationHandler struct {
	engine *delegation.Engine
	logger *zap.Logger
}

func (h *delegationHandler) Register(router *gin.Engine) {
	router.GET("/delegation/capabilities", h.capabilities)
	router.POST("/delegation/capabilities", h.capabilities)
	router.POST("/delegation/submit", h.submit)
	router.POST("/delegation/result", h.result)
	router.GET("/community/identity", h.identity)

	admin := router.Group("/api/v1/delegation")
	admin.POST("/delegate", h.delegate)
	admin.POST("/deliver-result", h.deliverResult)
}

func (h *delegationHandler) capabilities(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.GetCapabilities())
}

func (h *delegationHandler) submit(c *gin.Context) {
	var task delegation.DelegatedTask
	if err := c.ShouldBindJSON(&task); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resp, err := h.engine.HandleIncomingTask(c.Request.Context(), task, c.ClientIP())
	if err != nil {
		RecordDelegationOutcome("rejected")
		c.JSON(http.StatusForbidden, resp)
		return
	}
	RecordDelegationOutcome("received")
	c.JSON(http.StatusOK, resp)
}

func (h *delegationHandler) result(c *gin.Context) {
	var payload delegation.DelegatedTaskResult
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.engine.HandleTaskResult(c.Request.Context(), payload); err != nil {
		c.JSON(http.StatusBadRequest, delegation.ResultResponse{Status: "error", Reason: err.Error()})
		return
	}
	if payload.Status == "completed" {
		RecordDelegationOutcome("completed")
	} else {
		RecordDelegationOutcome("failed")
	}
	c.JSON(http.StatusOK, delegation.ResultResponse{Status: "ok"})
}

func (h *delegationHandler) identity(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"node_id":    h.engine.GetCapabilities().NodeID,
		"public_key": h.engine.PublicKeyBase64(),
	})
}

type delegateRequest struct {
	Title               string   `json:"title" binding:"required"`
	Description         string   `json:"description"`
	Priority            string   `json:"priority"`
	RequiredSkillIDs    []string `json:"required_skill_ids"`
	RequiredAccessLevel int      `json:"required_access_level"`
	Context             string   `json:"context"`
}

func (h *delegationHandler) delegate(c *gin.Context) {
	var req delegateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	taskID, err := h.engine.DelegateTask(c.Request.Context(), req.Title, req.Description, req.Priority, req.RequiredSkillIDs, req.RequiredAccessLevel, req.Context)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": taskID})
}

type deliverResultRequest struct {
	LocalTaskID   string  `json:"local_task_id" binding:"required"`
	Status        string  `json:"status" binding:"required"`
	Result        string  `json:"result"`
	Error         string  `json:"error"`
	ExecutionTime float64 `json:"execution_time_seconds"`
}

func (h *delegationHandler) deliverResult(c *gin.Context) {
	var req deliverResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.engine.DeliverResult(c.Request.Context(), req.LocalTaskID, req.Status, req.Result, req.Error, req.ExecutionTime); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "delivered"})
}
