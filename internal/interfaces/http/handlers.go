package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/application/workflow"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handlers contains all HTTP request handlers
type Handlers struct {
	services Services
	version  string
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, version string, logger Logger) *Handlers {
	return &Handlers{
		services: services,
		version:  version,
		logger:   logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// DecisionRequest is the body of approve and reject calls
type DecisionRequest struct {
	Comments string `json:"comments"`
}

// OverrideRequest is the body of an administrator override
type OverrideRequest struct {
	Action   string `json:"action" binding:"required"`
	Comments string `json:"comments"`
}

// DecisionResponse summarizes what a decision or override changed
type DecisionResponse struct {
	Expense   *entity.Expense          `json:"expense"`
	Record    *entity.ApprovalRecord   `json:"record,omitempty"`
	Created   []*entity.ApprovalRecord `json:"created"`
	Cancelled int64                    `json:"cancelled"`
	Finalized bool                     `json:"finalized"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   h.version,
		},
	})
}

// CreateCompany handles POST /api/v1/companies
func (h *Handlers) CreateCompany(c *gin.Context) {
	var req service.CreateCompanyRequest
	if !h.bind(c, &req) {
		return
	}

	created, err := h.services.Companies.CreateCompany(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "Failed to create company", err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: created})
}

// ListEmployees handles GET /api/v1/employees
func (h *Handlers) ListEmployees(c *gin.Context) {
	employees, err := h.services.Companies.ListEmployees(c.Request.Context(), principal(c))
	if err != nil {
		h.fail(c, "Failed to list employees", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: nonNil(employees)})
}

// CreateEmployee handles POST /api/v1/employees
func (h *Handlers) CreateEmployee(c *gin.Context) {
	var req service.CreateEmployeeRequest
	if !h.bind(c, &req) {
		return
	}

	employee, err := h.services.Companies.CreateEmployee(c.Request.Context(), principal(c), req)
	if err != nil {
		h.fail(c, "Failed to create employee", err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: employee})
}

// UpdateEmployee handles PUT /api/v1/employees/:id
func (h *Handlers) UpdateEmployee(c *gin.Context) {
	id, ok := h.pathID(c, "employee")
	if !ok {
		return
	}

	var req service.UpdateEmployeeRequest
	if !h.bind(c, &req) {
		return
	}

	employee, err := h.services.Companies.UpdateEmployee(c.Request.Context(), principal(c), id, req)
	if err != nil {
		h.fail(c, "Failed to update employee", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: employee})
}

// SubmitExpense handles POST /api/v1/expenses
func (h *Handlers) SubmitExpense(c *gin.Context) {
	var req service.SubmitExpenseRequest
	if !h.bind(c, &req) {
		return
	}

	expense, err := h.services.Expenses.Submit(c.Request.Context(), principal(c), req)
	if err != nil {
		h.fail(c, "Failed to submit expense", err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: expense})
}

// ListMyExpenses handles GET /api/v1/expenses/my
func (h *Handlers) ListMyExpenses(c *gin.Context) {
	expenses, err := h.services.Expenses.ListMyExpenses(c.Request.Context(), principal(c))
	if err != nil {
		h.fail(c, "Failed to list expenses", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: nonNil(expenses)})
}

// GetExpense handles GET /api/v1/expenses/:id
func (h *Handlers) GetExpense(c *gin.Context) {
	id, ok := h.pathID(c, "expense")
	if !ok {
		return
	}

	expense, err := h.services.Expenses.GetExpense(c.Request.Context(), principal(c), id)
	if err != nil {
		h.fail(c, "Failed to get expense", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: expense})
}

// ExpenseApprovals handles GET /api/v1/expenses/:id/approvals
func (h *Handlers) ExpenseApprovals(c *gin.Context) {
	id, ok := h.pathID(c, "expense")
	if !ok {
		return
	}

	records, err := h.services.Expenses.ExpenseApprovals(c.Request.Context(), principal(c), id)
	if err != nil {
		h.fail(c, "Failed to list expense approvals", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: nonNil(records)})
}

// OverrideExpense handles POST /api/v1/expenses/:id/override
func (h *Handlers) OverrideExpense(c *gin.Context) {
	id, ok := h.pathID(c, "expense")
	if !ok {
		return
	}

	var req OverrideRequest
	if !h.bind(c, &req) {
		return
	}
	action := workflow.Action(req.Action)
	if !action.IsValid() {
		badRequest(c, fmt.Sprintf("action must be %q or %q", workflow.ActionApprove, workflow.ActionReject))
		return
	}

	outcome, err := h.services.Expenses.Override(c.Request.Context(), principal(c), id, action, req.Comments)
	if err != nil {
		h.fail(c, "Failed to override expense", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: toDecisionResponse(outcome)})
}

// ExportExpenses handles GET /api/v1/expenses/export
func (h *Handlers) ExportExpenses(c *gin.Context) {
	// Buffer so a failed export can still be reported as JSON
	var buf bytes.Buffer
	if err := h.services.Expenses.ExportCompanyExpenses(c.Request.Context(), principal(c), &buf); err != nil {
		h.fail(c, "Failed to export expenses", err)
		return
	}

	filename := fmt.Sprintf("expenses-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// PendingApprovals handles GET /api/v1/approvals/pending
func (h *Handlers) PendingApprovals(c *gin.Context) {
	pending, err := h.services.Expenses.PendingApprovals(c.Request.Context(), principal(c))
	if err != nil {
		h.fail(c, "Failed to list pending approvals", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: nonNil(pending)})
}

// Approve handles POST /api/v1/approvals/:id/approve
func (h *Handlers) Approve(c *gin.Context) {
	h.decide(c, workflow.ActionApprove)
}

// Reject handles POST /api/v1/approvals/:id/reject
func (h *Handlers) Reject(c *gin.Context) {
	h.decide(c, workflow.ActionReject)
}

func (h *Handlers) decide(c *gin.Context, action workflow.Action) {
	id, ok := h.pathID(c, "approval")
	if !ok {
		return
	}

	var req DecisionRequest
	if !h.bindOptional(c, &req) {
		return
	}

	outcome, err := h.services.Expenses.Decide(c.Request.Context(), principal(c), id, action, req.Comments)
	if err != nil {
		h.fail(c, "Failed to record decision", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: toDecisionResponse(outcome)})
}

// GetWorkflow handles GET /api/v1/workflows
func (h *Handlers) GetWorkflow(c *gin.Context) {
	cfg, err := h.services.Workflows.GetWorkflowConfig(c.Request.Context(), principal(c))
	if err != nil {
		h.fail(c, "Failed to get workflow", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: cfg})
}

// SetWorkflow handles PUT /api/v1/workflows
func (h *Handlers) SetWorkflow(c *gin.Context) {
	var cfg domainwf.Config
	if !h.bind(c, &cfg) {
		return
	}

	saved, err := h.services.Workflows.SetWorkflowConfig(c.Request.Context(), principal(c), &cfg)
	if err != nil {
		h.fail(c, "Failed to set workflow", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: saved})
}

// bind decodes a required JSON body, writing a 400 on failure
func (h *Handlers) bind(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		h.logger.Error("Invalid request body", "path", c.FullPath(), "error", err)
		badRequest(c, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// bindOptional is bind for bodies that may be omitted entirely
func (h *Handlers) bindOptional(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Error("Invalid request body", "path", c.FullPath(), "error", err)
		badRequest(c, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// pathID parses the :id path parameter
func (h *Handlers) pathID(c *gin.Context, what string) (int64, bool) {
	idStr := c.Param("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		h.logger.Error("Invalid path ID", "kind", what, "id", idStr)
		badRequest(c, "invalid "+what+" ID")
		return 0, false
	}
	return id, true
}

// fail logs err and writes the mapped error response
func (h *Handlers) fail(c *gin.Context, msg string, err error) {
	h.logger.Error(msg,
		"path", c.FullPath(),
		"request_id", c.GetString(requestIDKey),
		"error", err)
	writeError(c, err)
}

func toDecisionResponse(outcome *workflow.DecisionOutcome) DecisionResponse {
	return DecisionResponse{
		Expense:   outcome.Expense,
		Record:    outcome.Record,
		Created:   nonNil(outcome.Created),
		Cancelled: outcome.Cancelled,
		Finalized: outcome.Finalized,
	}
}

// nonNil keeps empty lists encoded as [] rather than null
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
