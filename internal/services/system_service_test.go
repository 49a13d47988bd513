package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/closetline/api/internal/domain"
)

type stubHealthRepository struct {
	report domain.SystemHealthReport
	err    error
	calls  int
}

func (s *stubHealthRepository) Collect(context.Context) (domain.SystemHealthReport, error) {
	s.calls++
	return s.report, s.err
}

func TestSystemServiceStampsBuildAndPayments(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(5 * time.Minute)
	repo := &stubHealthRepository{report: domain.SystemHealthReport{
		Status: domain.HealthStatusOK,
		Checks: map[string]domain.SystemHealthCheck{"firestore": {Status: domain.HealthStatusOK}},
	}}

	svc, err := NewSystemService(SystemServiceDeps{
		Health:       repo,
		Build:        BuildInfo{Version: "1.4.0", CommitSHA: "c0ffee", Environment: "prod", StartedAt: start},
		CardPayments: true,
		Clock:        func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.Status != domain.HealthStatusOK {
		t.Fatalf("expected status ok, got %s", report.Status)
	}
	if report.Version != "1.4.0" || report.CommitSHA != "c0ffee" || report.Environment != "prod" {
		t.Fatalf("unexpected build metadata %+v", report)
	}
	if report.Uptime != 5*time.Minute || !report.GeneratedAt.Equal(now) {
		t.Fatalf("unexpected timing uptime=%s generatedAt=%s", report.Uptime, report.GeneratedAt)
	}
	if got := report.Checks[PaymentsCheckName]; got.Status != domain.HealthStatusOK {
		t.Fatalf("expected payments ok with a gateway, got %+v", got)
	}
	if _, ok := repo.report.Checks[PaymentsCheckName]; ok {
		t.Fatal("expected repository checks map left untouched")
	}
}

func TestSystemServiceCashOnlyStorefrontIsDegraded(t *testing.T) {
	repo := &stubHealthRepository{report: domain.SystemHealthReport{
		Status: domain.HealthStatusOK,
		Checks: map[string]domain.SystemHealthCheck{"firestore": {Status: domain.HealthStatusOK}},
	}}
	svc, err := NewSystemService(SystemServiceDeps{Health: repo})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected degraded without card payments, got %s", report.Status)
	}
	if got := report.Checks[PaymentsCheckName]; got.Status != domain.HealthStatusDegraded || got.Detail != "cash_on_delivery only" {
		t.Fatalf("unexpected payments check %+v", got)
	}
}

func TestSystemServiceKeepsFirestoreErrorStatus(t *testing.T) {
	repo := &stubHealthRepository{report: domain.SystemHealthReport{
		Status: domain.HealthStatusError,
		Checks: map[string]domain.SystemHealthCheck{
			"firestore": {Status: domain.HealthStatusError, Detail: "timeout"},
			"redis":     {Status: domain.HealthStatusOK},
		},
	}}
	svc, err := NewSystemService(SystemServiceDeps{Health: repo})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.Status != domain.HealthStatusError {
		t.Fatalf("expected firestore failure to win over degraded payments, got %s", report.Status)
	}
}

func TestSystemServiceHealthReportErrors(t *testing.T) {
	expected := errors.New("collect failed")
	svc, err := NewSystemService(SystemServiceDeps{Health: &stubHealthRepository{err: expected}})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}
	if _, err := svc.HealthReport(context.Background()); !errors.Is(err, expected) {
		t.Fatalf("expected error %v, got %v", expected, err)
	}
}

func TestNewSystemServiceRequiresRepository(t *testing.T) {
	if _, err := NewSystemService(SystemServiceDeps{}); err == nil {
		t.Fatalf("expected error when repository missing")
	}
}

func TestSystemServiceDerivesStatusWhenBlank(t *testing.T) {
	cases := []struct {
		name   string
		checks map[string]domain.SystemHealthCheck
		want   string
	}{
		{"no checks", nil, domain.HealthStatusOK},
		{"redis degraded", map[string]domain.SystemHealthCheck{
			"redis":     {Status: domain.HealthStatusDegraded},
			"firestore": {Status: domain.HealthStatusOK},
		}, domain.HealthStatusDegraded},
		{"unknown status degrades", map[string]domain.SystemHealthCheck{
			"redis": {Status: "flapping"},
		}, domain.HealthStatusDegraded},
		{"error wins", map[string]domain.SystemHealthCheck{
			"redis":     {Status: domain.HealthStatusDegraded},
			"firestore": {Status: domain.HealthStatusError},
		}, domain.HealthStatusError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &stubHealthRepository{report: domain.SystemHealthReport{Checks: tc.checks}}
			svc, err := NewSystemService(SystemServiceDeps{Health: repo, CardPayments: true})
			if err != nil {
				t.Fatalf("NewSystemService: %v", err)
			}
			report, err := svc.HealthReport(context.Background())
			if err != nil {
				t.Fatalf("HealthReport: %v", err)
			}
			if report.Status != tc.want {
				t.Fatalf("expected status %s, got %s", tc.want, report.Status)
			}
			if len(report.Checks) != len(tc.checks)+1 {
				t.Fatalf("expected payments check added, got %v", report.Checks)
			}
		})
	}
}
