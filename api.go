package main

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mktfun/gps-rh-13-sub002/config"
	"github.com/mktfun/gps-rh-13-sub002/models"
	"github.com/mktfun/gps-rh-13-sub002/models/reports"
	"github.com/mktfun/gps-rh-13-sub002/utils"
	"github.com/mktfun/gps-rh-13-sub002/workflow"
)

// pendencyListItem is a pendency row with its derived classification. Tier
// and days open are computed per request, never stored.
type pendencyListItem struct {
	*models.PendencyRow
	Tier     models.PendencyTier         `json:"tier"`
	DaysOpen int                         `json:"days_open"`
	Warnings []*utils.DataQualityWarning `json:"warnings,omitempty"`
}

func requireBrokerId(c *gin.Context) (string, bool) {
	brokerId, ok := utils.GetBrokerIdFromContext(c.Request.Context())
	if !ok || brokerId == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return "", false
	}
	return brokerId, true
}

// writeDomainError maps domain sentinels onto HTTP statuses. Scope
// violations are not dressed up as not-found; they carry their own status so
// they show up in monitoring.
func writeDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
	case errors.Is(err, utils.ErrScopeViolation):
		c.JSON(http.StatusForbidden, gin.H{"error": "record belongs to another broker"})
	case errors.Is(err, utils.ErrRepositoryUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "repository unavailable"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

// parseDateParam accepts a calendar date or a full timestamp. With endOfDay
// a date-only value widens to the last instant of that day, keeping upper
// bounds inclusive of the whole date.
func parseDateParam(raw string, endOfDay bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		if endOfDay {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func listPendenciesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireBrokerId(c); !ok {
			return
		}

		fromDate, err := parseDateParam(c.Query("from"), false)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date"})
			return
		}
		toDate, err := parseDateParam(c.Query("to"), true)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to date"})
			return
		}

		filters := models.PendencyListFilters{
			FromDate: fromDate,
			ToDate:   toDate,
			Search:   c.Query("search"),
		}
		if raw := c.Query("type"); raw != "" {
			t := models.PendencyType(raw)
			if !t.IsValid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pendency type"})
				return
			}
			filters.Type = &t
		}
		if raw := c.Query("tax_registration_id"); raw != "" {
			id, err := strconv.Atoi(raw)
			if err != nil || id <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tax_registration_id"})
				return
			}
			filters.TaxRegistrationId = &id
		}

		var tierFilter *models.PendencyTier
		if raw := c.Query("tier"); raw != "" {
			t := models.PendencyTier(raw)
			if !t.IsValid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tier"})
				return
			}
			tierFilter = &t
		}

		rows, err := models.ListOpenPendenciesForBroker(c.Request.Context(), filters)
		if err != nil {
			writeDomainError(c, err)
			return
		}

		now := time.Now()
		urgentWindow := config.UrgentWindowDays()
		items := make([]*pendencyListItem, 0, len(rows))
		for _, row := range rows {
			createdAt := row.CreatedAt
			classification := workflow.ClassifyPriority(row.DueDate, &createdAt, now, urgentWindow)
			// Tier is derived, so the filter runs here instead of SQL.
			if tierFilter != nil && classification.Tier != *tierFilter {
				continue
			}
			items = append(items, &pendencyListItem{
				PendencyRow: row,
				Tier:        classification.Tier,
				DaysOpen:    classification.DaysOpen,
				Warnings:    classification.Warnings,
			})
		}

		c.JSON(http.StatusOK, gin.H{
			"pendencies": items,
			"total":      len(items),
		})
	}
}

type resolvePendencyRequest struct {
	Action models.ResolveAction `json:"action" binding:"required"`
}

func resolvePendencyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireBrokerId(c); !ok {
			return
		}

		id, err := strconv.Atoi(c.Param("id"))
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pendency id"})
			return
		}

		var req resolvePendencyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		pendency, err := models.ResolvePendency(c.Request.Context(), id, req.Action)
		if err != nil {
			writeDomainError(c, err)
			return
		}

		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{
			"pendency":       pendency,
			"correlation_id": cid,
		})
	}
}

func createPendencyCommentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireBrokerId(c); !ok {
			return
		}

		id, err := strconv.Atoi(c.Param("id"))
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pendency id"})
			return
		}

		var input models.NewPendencyComment
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		comment, err := models.CreatePendencyComment(c.Request.Context(), id, &input)
		if err != nil {
			writeDomainError(c, err)
			return
		}
		c.JSON(http.StatusCreated, comment)
	}
}

func listPendencyCommentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireBrokerId(c); !ok {
			return
		}

		id, err := strconv.Atoi(c.Param("id"))
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pendency id"})
			return
		}

		if _, err := models.GetPendency(c.Request.Context(), id); err != nil {
			writeDomainError(c, err)
			return
		}

		comments, err := models.ListPendencyComments(c.Request.Context(), id)
		if err != nil {
			writeDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"comments": comments, "total": len(comments)})
	}
}

// costAllocationHandler serves three granularities off the same route:
// one registration, one company, or the whole portfolio when neither
// parameter is given.
func costAllocationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireBrokerId(c); !ok {
			return
		}

		if raw := c.Query("tax_registration_id"); raw != "" {
			id, err := strconv.Atoi(raw)
			if err != nil || id <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tax_registration_id"})
				return
			}
			summary, err := reports.GetRegistrationCostAllocation(c.Request.Context(), id)
			if err != nil {
				writeDomainError(c, err)
				return
			}
			c.JSON(http.StatusOK, summary)
			return
		}

		if raw := c.Query("company_id"); raw != "" {
			id, err := strconv.Atoi(raw)
			if err != nil || id <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid company_id"})
				return
			}
			summary, err := reports.GetCompanyCostAllocation(c.Request.Context(), id)
			if err != nil {
				writeDomainError(c, err)
				return
			}
			c.JSON(http.StatusOK, summary)
			return
		}

		summary, err := reports.GetPortfolioSummary(c.Request.Context())
		if err != nil {
			writeDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

// reconcileHandler runs one on-demand pass for the caller's broker scope.
// The run is synchronous; the response carries the full summary.
func reconcileHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		brokerId, ok := requireBrokerId(c)
		if !ok {
			return
		}

		// Admins may target another broker's scope.
		if target := c.Query("broker_id"); target != "" && target != brokerId {
			if isAdmin, _ := utils.GetIsAdminFromContext(c.Request.Context()); !isAdmin {
				c.JSON(http.StatusForbidden, gin.H{"error": "cannot reconcile another broker"})
				return
			}
			brokerId = target
		}

		summary, err := workflow.ReconcileBroker(c.Request.Context(), config.GetDB(), config.GetLogger(), brokerId)
		if err != nil {
			writeDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

func aggregateReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireBrokerId(c); !ok {
			return
		}

		fromDate, err := parseDateParam(c.Query("from"), false)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date"})
			return
		}
		toDate, err := parseDateParam(c.Query("to"), true)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to date"})
			return
		}

		summary, err := reports.GetPendencySummary(c.Request.Context(), fromDate, toDate)
		if err != nil {
			writeDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}
