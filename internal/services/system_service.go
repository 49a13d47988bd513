package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/closetline/api/internal/domain"
	"github.com/closetline/api/internal/repositories"
)

// PaymentsCheckName is the readiness entry describing which checkout methods the storefront can take.
const PaymentsCheckName = "payments"

// BuildInfo identifies the running storefront build on /healthz and /readyz.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// SystemServiceDeps wires the readiness report.
type SystemServiceDeps struct {
	// Health runs the Firestore and Redis checks. Firestore is critical, Redis only degrades.
	Health repositories.HealthRepository
	Build  BuildInfo
	// CardPayments is false when no payment gateway is wired and checkout is cash on delivery only.
	CardPayments bool
	Clock        func() time.Time
}

type systemService struct {
	health       repositories.HealthRepository
	build        BuildInfo
	cardPayments bool
	now          func() time.Time
}

var _ SystemService = (*systemService)(nil)

// NewSystemService builds the service behind /readyz.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.Health == nil {
		return nil, errors.New("system service: health repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	build := deps.Build
	if build.StartedAt.IsZero() {
		build.StartedAt = clock()
	}
	return &systemService{
		health:       deps.Health,
		build:        build,
		cardPayments: deps.CardPayments,
		now: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

// HealthReport collects the dependency checks, adds the payments entry and stamps the build.
// A storefront without card payments still serves traffic, so that entry can only degrade the report.
func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	report, err := s.health.Collect(ctx)
	if err != nil {
		return SystemHealthReport{}, fmt.Errorf("system: collect health: %w", err)
	}

	now := s.now()
	checks := make(map[string]domain.SystemHealthCheck, len(report.Checks)+1)
	for name, check := range report.Checks {
		checks[name] = check
	}
	payments := s.paymentsCheck(now)
	checks[PaymentsCheckName] = payments
	report.Checks = checks

	status := strings.TrimSpace(report.Status)
	if status == "" {
		status = statusFromChecks(report.Checks)
	}
	report.Status = worseStatus(status, payments.Status)

	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	} else {
		report.GeneratedAt = report.GeneratedAt.UTC()
	}
	if report.Uptime <= 0 {
		report.Uptime = now.Sub(s.build.StartedAt)
	}
	report.Version = firstNonEmpty(report.Version, s.build.Version)
	report.CommitSHA = firstNonEmpty(report.CommitSHA, s.build.CommitSHA)
	report.Environment = firstNonEmpty(report.Environment, s.build.Environment)
	return report, nil
}

func (s *systemService) paymentsCheck(now time.Time) domain.SystemHealthCheck {
	if s.cardPayments {
		return domain.SystemHealthCheck{Status: domain.HealthStatusOK, Detail: "card and cash_on_delivery", CheckedAt: now}
	}
	return domain.SystemHealthCheck{Status: domain.HealthStatusDegraded, Detail: "cash_on_delivery only", CheckedAt: now}
}

var statusRank = map[string]int{
	domain.HealthStatusOK:       0,
	domain.HealthStatusDegraded: 1,
	domain.HealthStatusError:    2,
}

// statusFromChecks is used when the repository left the status blank. Unknown check statuses degrade.
func statusFromChecks(checks map[string]domain.SystemHealthCheck) string {
	status := domain.HealthStatusOK
	for _, check := range checks {
		if check.Status == "" {
			continue
		}
		if _, known := statusRank[check.Status]; !known {
			status = worseStatus(status, domain.HealthStatusDegraded)
			continue
		}
		status = worseStatus(status, check.Status)
	}
	return status
}

func worseStatus(a, b string) string {
	if statusRank[b] > statusRank[a] {
		return b
	}
	return a
}
