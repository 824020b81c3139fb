package http

import (
	"bytes"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openwind/approvalflow/internal/domain/entity"
	"github.com/openwind/approvalflow/internal/domain/workflow"
	"github.com/openwind/approvalflow/internal/engine"
	"github.com/openwind/approvalflow/internal/export"
	"github.com/openwind/approvalflow/internal/query"
	"github.com/openwind/approvalflow/internal/template"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	templates *template.Store
	engine    *engine.Engine
	queries   *query.Service
	exporter  *export.AuditExporter
	logger    Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	templates *template.Store,
	eng *engine.Engine,
	queries *query.Service,
	exporter *export.AuditExporter,
	logger Logger,
) *Handlers {
	return &Handlers{
		templates: templates,
		engine:    eng,
		queries:   queries,
		exporter:  exporter,
		logger:    logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// CreateTemplate handles POST /api/templates
func (h *Handlers) CreateTemplate(c *gin.Context) {
	var input template.CreateTemplateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: err.Error()})
		return
	}

	tmpl, err := h.templates.CreateTemplate(c.Request.Context(), input)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: tmpl})
}

// GetTemplate handles GET /api/templates/:id
func (h *Handlers) GetTemplate(c *gin.Context) {
	chain, err := h.templates.GetTemplate(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: gin.H{
		"template": chain.Template,
		"nodes":    chain.Nodes,
	}})
}

// ListTemplates handles GET /api/templates?kind_code=...
func (h *Handlers) ListTemplates(c *gin.Context) {
	kindCode := c.Query("kind_code")
	if kindCode == "" {
		c.JSON(http.StatusBadRequest, Response{Error: "kind_code is required"})
		return
	}

	templates, err := h.templates.ListByKindCode(c.Request.Context(), kindCode)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: templates})
}

// UpdateTemplate handles PUT /api/templates/:id
func (h *Handlers) UpdateTemplate(c *gin.Context) {
	var input template.CreateTemplateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: err.Error()})
		return
	}

	if err := h.templates.UpdateTemplate(c.Request.Context(), c.Param("id"), input); err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// DeleteTemplate handles DELETE /api/templates/:id
func (h *Handlers) DeleteTemplate(c *gin.Context) {
	if err := h.templates.DeleteTemplate(c.Request.Context(), c.Param("id")); err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

type createInstanceRequest struct {
	TemplateID string `json:"template_id" binding:"required"`
	DocID      string `json:"doc_id" binding:"required"`
	Remark     string `json:"remark"`
}

// CreateInstance handles POST /api/instances
func (h *Handlers) CreateInstance(c *gin.Context) {
	var req createInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: err.Error()})
		return
	}

	inst, err := h.engine.CreateInstance(c.Request.Context(), req.TemplateID, req.DocID, req.Remark)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: inst})
}

// GetInstance handles GET /api/instances/:id
func (h *Handlers) GetInstance(c *gin.Context) {
	view, err := h.queries.GetInstanceState(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: view})
}

type recordDecisionRequest struct {
	ItemID     string `json:"item_id" binding:"required"`
	OperatorID string `json:"operator_id"`
	Verdict    *bool  `json:"is_success"`
	Comment    string `json:"comment"`
}

// RecordDecision handles POST /api/instances/:id/decisions
func (h *Handlers) RecordDecision(c *gin.Context) {
	var req recordDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: err.Error()})
		return
	}

	err := h.engine.RecordDecision(c.Request.Context(), engine.DecisionRequest{
		InstanceID: c.Param("id"),
		ItemID:     req.ItemID,
		OperatorID: req.OperatorID,
		Verdict:    req.Verdict,
		Comment:    req.Comment,
	})
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

type cancelInstanceRequest struct {
	Reason string `json:"reason"`
}

// CancelInstance handles POST /api/instances/:id/cancel
func (h *Handlers) CancelInstance(c *gin.Context) {
	var req cancelInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: err.Error()})
		return
	}

	if err := h.engine.CancelInstance(c.Request.Context(), c.Param("id"), req.Reason); err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

type seedItemRequest struct {
	OperatorID    string `json:"operator_id" binding:"required"`
	OperationKind int    `json:"operation_kind"`
}

// SeedPendingItem handles POST /api/instances/:id/items
func (h *Handlers) SeedPendingItem(c *gin.Context) {
	var req seedItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: err.Error()})
		return
	}

	item, err := h.engine.SeedPendingItem(c.Request.Context(), c.Param("id"),
		req.OperatorID, entity.OperationKind(req.OperationKind))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: item})
}

type assignOperatorRequest struct {
	OperatorID string `json:"operator_id" binding:"required"`
}

// AssignOperator handles POST /api/instances/:id/items/:item_id/assign
func (h *Handlers) AssignOperator(c *gin.Context) {
	var req assignOperatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: err.Error()})
		return
	}

	if err := h.engine.AssignOperator(c.Request.Context(), c.Param("id"), c.Param("item_id"), req.OperatorID); err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// ListInstancesByDoc handles GET /api/documents/:doc_id/instances
func (h *Handlers) ListInstancesByDoc(c *gin.Context) {
	instances, err := h.queries.ListInstancesByDoc(c.Request.Context(), c.Param("doc_id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: instances})
}

// ListPending handles GET /api/operators/:id/pending
func (h *Handlers) ListPending(c *gin.Context) {
	items, err := h.queries.ListPendingFor(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: items})
}

// ExportInstance handles GET /api/instances/:id/export
func (h *Handlers) ExportInstance(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.exporter.WriteInstance(c.Request.Context(), c.Param("id"), &buf); err != nil {
		h.renderError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="approval-trail-`+c.Param("id")+`.xlsx"`)
	c.Data(http.StatusOK,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

// renderError maps the domain error taxonomy onto HTTP status codes
func (h *Handlers) renderError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, workflow.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, workflow.ErrInvalidTemplateShape),
		errors.Is(err, workflow.ErrVerdictRequired):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, workflow.ErrNotCurrentNode),
		errors.Is(err, workflow.ErrNotApprover),
		errors.Is(err, workflow.ErrInstanceClosed),
		errors.Is(err, workflow.ErrConflictingDecision),
		errors.Is(err, workflow.ErrTemplateInUse),
		errors.Is(err, workflow.ErrDuplicateActive),
		errors.Is(err, workflow.ErrConcurrencyConflict):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "error", err)
	}
	c.JSON(status, Response{Error: err.Error()})
}
