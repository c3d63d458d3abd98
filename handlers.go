package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rankhive/seofix_backend/config"
	"github.com/rankhive/seofix_backend/models"
	"github.com/rankhive/seofix_backend/utils"
	"github.com/rankhive/seofix_backend/workflow"
	"gorm.io/gorm"
)

func statusForError(err error) int {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return http.StatusNotFound
	}
	code, ok := workflow.CodeOf(err)
	if !ok {
		return http.StatusBadRequest
	}
	switch code {
	case workflow.CodeAdapterUnavailable:
		return http.StatusServiceUnavailable
	case workflow.CodeQuotaExceeded:
		return http.StatusTooManyRequests
	case workflow.CodeRollbackExpired:
		return http.StatusGone
	case workflow.CodeStalePrecondition, workflow.CodeConflictingFix,
		workflow.CodeFixNotPending, workflow.CodeFixNotApplied, workflow.CodePlanNotPending:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func errorBody(err error) gin.H {
	body := gin.H{"error": err.Error()}
	if code, ok := workflow.CodeOf(err); ok {
		body["code"] = code
	}
	return body
}

func requireAccount(c *gin.Context) (string, bool) {
	accountId, ok := utils.GetAccountIdFromContext(c.Request.Context())
	if !ok || accountId == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return "", false
	}
	return accountId, true
}

func requireAdmin(c *gin.Context) bool {
	if _, ok := requireAccount(c); !ok {
		return false
	}
	if isAdmin, _ := utils.GetIsAdminFromContext(c.Request.Context()); !isAdmin {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return false
	}
	return true
}

func pathId(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a positive integer"})
		return 0, false
	}
	return id, true
}

// GET /api/connections/:id
func getConnectionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireAccount(c); !ok {
			return
		}
		connectionId, ok := pathId(c, "id")
		if !ok {
			return
		}
		conn, err := models.GetConnection(c.Request.Context(), connectionId)
		if err != nil {
			c.JSON(statusForError(err), errorBody(err))
			return
		}
		c.JSON(http.StatusOK, conn)
	}
}

type executionModeRequest struct {
	ExecutionMode string `json:"execution_mode"`
}

// PUT /api/connections/:id/execution-mode
func setExecutionModeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireAccount(c); !ok {
			return
		}
		connectionId, ok := pathId(c, "id")
		if !ok {
			return
		}
		var req executionModeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		mode, err := models.ParseExecutionMode(req.ExecutionMode)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := models.SetConnectionExecutionMode(c.Request.Context(), connectionId, mode); err != nil {
			c.JSON(statusForError(err), errorBody(err))
			return
		}
		conn, err := models.GetConnection(c.Request.Context(), connectionId)
		if err != nil {
			c.JSON(statusForError(err), errorBody(err))
			return
		}
		c.JSON(http.StatusOK, conn)
	}
}

type createFixesRequest struct {
	IssueIds []int `json:"issueIds"`
}

// POST /api/connections/:id/fixes
// Auditor trigger: turn detected issues into fixes per the connection's
// execution mode.
func createFixesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireAccount(c); !ok {
			return
		}
		connectionId, ok := pathId(c, "id")
		if !ok {
			return
		}
		var req createFixesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		ctx, span := tracer.Start(c.Request.Context(), "CreateFixesFromAudit")
		defer span.End()

		result, err := workflow.CreateFixesFromAudit(ctx, config.GetDB(), workflow.CreateFixesInput{
			ConnectionId: connectionId,
			IssueIds:     req.IssueIds,
		})
		if err != nil {
			c.JSON(statusForError(err), errorBody(err))
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// POST /api/fixes/:id/apply
// APPROVE-mode user action; also the manual retry path for failed creations.
func applyFixHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireAccount(c); !ok {
			return
		}
		fixId, ok := pathId(c, "id")
		if !ok {
			return
		}
		ctx, span := tracer.Start(c.Request.Context(), "ApplyFix")
		defer span.End()

		if err := workflow.ApplyFix(ctx, config.GetDB(), fixId); err != nil {
			c.JSON(statusForError(err), errorBody(err))
			return
		}
		fix, err := models.GetFix(c.Request.Context(), fixId)
		if err != nil {
			c.JSON(statusForError(err), errorBody(err))
			return
		}
		c.JSON(http.StatusOK, fix)
	}
}

// POST /api/fixes/:id/rollback
func rollbackFixHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireAccount(c); !ok {
			return
		}
		fixId, ok := pathId(c, "id")
		if !ok {
			return
		}
		if err := workflow.RollbackFix(c.Request.Context(), config.GetDB(), fixId); err != nil {
			c.JSON(statusForError(err), errorBody(err))
			return
		}
		fix, err := models.GetFix(c.Request.Context(), fixId)
		if err != nil {
			c.JSON(statusForError(err), errorBody(err))
			return
		}
		c.JSON(http.StatusOK, fix)
	}
}

// GET /api/fixes/:id
func getFixHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireAccount(c); !ok {
			return
		}
		fixId, ok := pathId(c, "id")
		if !ok {
			return
		}
		fix, err := models.GetFix(c.Request.Context(), fixId)
		if err != nil {
			c.JSON(statusForError(err), errorBody(err))
			return
		}
		c.JSON(http.StatusOK, fix)
	}
}

// POST /api/plans/:id/approve
func approvePlanHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireAccount(c); !ok {
			return
		}
		planId, ok := pathId(c, "id")
		if !ok {
			return
		}
		ctx, span := tracer.Start(c.Request.Context(), "ApprovePlan")
		defer span.End()

		result, err := workflow.ApprovePlan(ctx, config.GetDB(), planId)
		if err != nil {
			c.JSON(statusForError(err), errorBody(err))
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// POST /api/plans/:id/abandon
func abandonPlanHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireAccount(c); !ok {
			return
		}
		planId, ok := pathId(c, "id")
		if !ok {
			return
		}
		if err := workflow.AbandonPlan(c.Request.Context(), config.GetDB(), planId); err != nil {
			c.JSON(statusForError(err), errorBody(err))
			return
		}
		plan, err := models.GetPlan(c.Request.Context(), planId)
		if err != nil {
			c.JSON(statusForError(err), errorBody(err))
			return
		}
		c.JSON(http.StatusOK, plan)
	}
}

// GET /api/plans/:id
func getPlanHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireAccount(c); !ok {
			return
		}
		planId, ok := pathId(c, "id")
		if !ok {
			return
		}
		plan, err := models.GetPlan(c.Request.Context(), planId)
		if err != nil {
			c.JSON(statusForError(err), errorBody(err))
			return
		}
		fixes, err := models.ListPlanFixes(c.Request.Context(), config.GetDB(), planId)
		if err != nil {
			c.JSON(statusForError(err), errorBody(err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"plan": plan, "fixes": fixes})
	}
}

// GET /api/audit-entries?connectionId=&action=&from=&to=&limit=&offset=
func auditEntriesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireAccount(c); !ok {
			return
		}
		filter := models.AuditEntryFilter{
			Action: models.AuditAction(c.Query("action")),
		}
		if v := c.Query("connectionId"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				filter.ConnectionId = n
			}
		}
		if v := c.Query("from"); v != "" {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				filter.From = &t
			}
		}
		if v := c.Query("to"); v != "" {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				filter.To = &t
			}
		}
		if v := c.Query("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				filter.Limit = n
			}
		}
		if v := c.Query("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				filter.Offset = n
			}
		}

		entries, total, err := models.QueryAuditEntries(c.Request.Context(), filter)
		if err != nil {
			c.JSON(statusForError(err), errorBody(err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"entries": entries, "total": total})
	}
}

// GET /api/usage
func usageHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountId, ok := requireAccount(c)
		if !ok {
			return
		}
		month := c.Query("month")
		if month == "" {
			month = models.MonthKey(time.Now())
		}
		usage, err := models.GetUsage(c.Request.Context(), accountId, month)
		if err != nil {
			c.JSON(statusForError(err), errorBody(err))
			return
		}
		c.JSON(http.StatusOK, usage)
	}
}

type fixJobReplayRequest struct {
	FixId  int `json:"fix_id"`
	PlanId int `json:"plan_id"`
}

// POST /internal/ops/fixjobs/replay
// Admin tooling: requeue FAILED/DEAD job rows for the session's account.
func fixJobReplayHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireAdmin(c) {
			return
		}
		var req fixJobReplayRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		count, err := models.ReplayFixJobs(c.Request.Context(), req.FixId, req.PlanId)
		if err != nil {
			c.JSON(statusForError(err), errorBody(err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"replayed": count})
	}
}

type usageCorrectionRequest struct {
	AccountId    string `json:"account_id"`
	Month        string `json:"month"`
	FixesApplied *int   `json:"fixes_applied"`
	MonthlyLimit *int   `json:"monthly_limit"`
	Reason       string `json:"reason"`
}

// POST /internal/ops/usage/correct
// Admin correction of a usage counter, always audited.
func usageCorrectionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireAdmin(c) {
			return
		}
		var req usageCorrectionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if req.AccountId == "" || req.Month == "" || req.Reason == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "account_id, month and reason are required"})
			return
		}
		if req.FixesApplied == nil && req.MonthlyLimit == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "fixes_applied or monthly_limit is required"})
			return
		}

		details := map[string]interface{}{
			"month":  req.Month,
			"reason": req.Reason,
		}
		ctx := utils.SetAccountIdInContext(c.Request.Context(), req.AccountId)
		err := config.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if req.FixesApplied != nil {
				if err := models.CorrectUsage(ctx, tx, req.AccountId, req.Month, *req.FixesApplied); err != nil {
					return err
				}
				details["fixes_applied"] = *req.FixesApplied
			}
			if req.MonthlyLimit != nil {
				if err := models.SetMonthlyLimit(ctx, tx, req.AccountId, req.Month, *req.MonthlyLimit); err != nil {
					return err
				}
				details["monthly_limit"] = *req.MonthlyLimit
			}
			return models.CreateAuditEntry(tx, 0, models.AuditActionUsageCorrected, "usage/"+req.Month, details)
		})
		if err != nil {
			c.JSON(statusForError(err), errorBody(err))
			return
		}
		usage, err := models.GetOrCreateUsage(ctx, config.GetDB(), req.AccountId, req.Month)
		if err != nil {
			c.JSON(statusForError(err), errorBody(err))
			return
		}
		c.JSON(http.StatusOK, usage)
	}
}
