package workflow

import (
	"time"

	"github.com/mktfun/gps-rh-13-sub002/models"
	"github.com/mktfun/gps-rh-13-sub002/utils"
)

// Classification is the derived urgency of one open pendency.
type Classification struct {
	Tier     models.PendencyTier   `json:"tier"`
	DaysOpen int                   `json:"days_open"`
	Warnings []*utils.DataQualityWarning `json:"warnings,omitempty"`
}

// ClassifyPriority derives the tier and age of a pendency. Pure and
// deterministic for fixed inputs; a missing due date or creation date
// degrades to normal/0 with a warning instead of failing.
//
// Tier rules:
//   - critical when the due date is already past
//   - urgent when 0 <= remaining calendar days <= urgentWindowDays
//   - normal otherwise
//
// Age is a calendar-day difference, never elapsed hours, so a run close to
// midnight cannot flap the value.
func ClassifyPriority(dueDate *time.Time, createdAt *time.Time, now time.Time, urgentWindowDays int) Classification {
	c := Classification{Tier: models.PendencyTierNormal}

	if createdAt == nil || createdAt.IsZero() {
		c.Warnings = append(c.Warnings, &utils.DataQualityWarning{
			Field:  "created_at",
			Reason: "missing creation date; age defaulted to 0",
		})
	} else {
		if days := utils.CalendarDaysBetween(*createdAt, now); days > 0 {
			c.DaysOpen = days
		}
	}

	if dueDate == nil || dueDate.IsZero() {
		c.Warnings = append(c.Warnings, &utils.DataQualityWarning{
			Field:  "due_date",
			Reason: "missing due date; tier defaulted to normal",
		})
		return c
	}

	if dueDate.Before(now) {
		c.Tier = models.PendencyTierCritical
		return c
	}

	remaining := utils.CalendarDaysBetween(now, *dueDate)
	if remaining >= 0 && remaining <= urgentWindowDays {
		c.Tier = models.PendencyTierUrgent
	}
	return c
}
