package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Product constants that historically drifted across call sites. Each one is
// defined exactly once here and read everywhere else; env overrides exist so
// operations can change them without a deploy.

const (
	defaultUrgentWindowDays     = 7
	defaultActivationDueDays    = 7
	defaultHealthPerHeadRate    = "300.00"
	defaultReconcileIntervalSec = 300
)

// UrgentWindowDays is the SLA window: a pendency whose due date is within
// this many calendar days is classified urgent.
//
// Env: SLA_URGENT_WINDOW_DAYS
func UrgentWindowDays() int {
	if v := strings.TrimSpace(os.Getenv("SLA_URGENT_WINDOW_DAYS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return defaultUrgentWindowDays
}

// ActivationDueDays is the due-date horizon for reconciler-created
// activation/cancellation pendencies.
//
// Env: SLA_ACTIVATION_DUE_DAYS
func ActivationDueDays() int {
	if v := strings.TrimSpace(os.Getenv("SLA_ACTIVATION_DUE_DAYS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return defaultActivationDueDays
}

// HealthPerHeadRate is the synthetic per-employee monthly rate applied to
// health plans whose monthly price is still zero (awaiting per-head pricing).
//
// Env: HEALTH_PER_HEAD_RATE
func HealthPerHeadRate() decimal.Decimal {
	if v := strings.TrimSpace(os.Getenv("HEALTH_PER_HEAD_RATE")); v != "" {
		if d, err := decimal.NewFromString(v); err == nil && !d.IsNegative() {
			return d
		}
	}
	rate, _ := decimal.NewFromString(defaultHealthPerHeadRate)
	return rate
}

// ReconcileInterval is how often the background reconciler sweeps all brokers.
//
// Env: RECONCILE_INTERVAL_SECONDS (0 disables the background sweep)
func ReconcileInterval() time.Duration {
	if v := strings.TrimSpace(os.Getenv("RECONCILE_INTERVAL_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return time.Duration(n) * time.Second
		}
	}
	return defaultReconcileIntervalSec * time.Second
}
