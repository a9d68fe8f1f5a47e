package gateway

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/torbobase/core/internal/agentregistry"
	"go.uber.org/zap"
)

type agentHandler struct {
	registry *agentregistry.Registry
	logger   *zap.Logger
}

func (h *agentHandler) Register(rg *gin.RouterGroup) {
	agents := rg.Group("/agents")
	{
		agents.GET("", h.list)
		agents.POST("", h.create)
		agents.GET("/:id", h.get)
		agents.PUT("/:id", h.update)
		agents.DELETE("/:id", h.delete)
		agents.POST("/:id/reset", h.reset)
	}
	rg.GET("/agents/:id/export", h.export)
	rg.POST("/agents/import", h.importAgents)
}

func (h *agentHandler) list(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"agents": h.registry.List()})
}

func (h *agentHandler) get(c *gin.Context) {
	agent, err := h.registry.Get(c.Param("id"))
	if err != nil {
		writeRegistryError(c, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}

func (h *agentHandler) create(c *gin.Context) {
	var agent agentregistry.Agent
	if err := c.ShouldBindJSON(&agent); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	created, err := h.registry.Create(&agent)
	if err != nil {
		writeRegistryError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *agentHandler) update(c *gin.Context) {
	var agent agentregistry.Agent
	if err := c.ShouldBindJSON(&agent); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	updated, err := h.registry.Update(c.Param("id"), &agent)
	if err != nil {
		writeRegistryError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *agentHandler) delete(c *gin.Context) {
	if err := h.registry.Delete(c.Param("id")); err != nil {
		writeRegistryError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *agentHandler) reset(c *gin.Context) {
	agent, err := h.registry.Reset()
	if err != nil {
		writeRegistryError(c, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}

func (h *agentHandler) export(c *gin.Context) {
	data, err := h.registry.Export()
	if err != nil {
		h.logger.Error("export agents", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

func (h *agentHandler) importAgents(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}
	n, err := h.registry.Import(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": n})
}

func writeRegistryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, agentregistry.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, agentregistry.ErrAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, agentregistry.ErrCannotDeleteBuilt), errors.Is(err, agentregistry.ErrInvalidID):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
