package health

import (
	"context"
	"errors"
	"testing"
)

type mockPinger struct{ err error }

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

type mockModel struct{ dim int }

func (m *mockModel) Dimension() int { return m.dim }

func TestCheck_AllHealthy(t *testing.T) {
	svc := New(&mockPinger{}, &mockModel{dim: 384})

	report := svc.Check(context.Background())
	if report.Status != Healthy {
		t.Errorf("expected healthy, got %s", report.Status)
	}
	if report.Checks["database"] != CheckOK || report.Checks["model"] != CheckOK {
		t.Errorf("unexpected checks: %v", report.Checks)
	}
}

func TestCheck_DatabaseDown(t *testing.T) {
	svc := New(&mockPinger{err: errors.New("connection refused")}, nil)

	report := svc.Check(context.Background())
	if report.Status != Degraded {
		t.Errorf("expected degraded, got %s", report.Status)
	}
	if report.Checks["database"] != CheckError {
		t.Errorf("unexpected checks: %v", report.Checks)
	}
}

func TestCheck_LazyModelPending(t *testing.T) {
	svc := New(&mockPinger{}, &mockModel{dim: 0})

	report := svc.Check(context.Background())
	if report.Status != Healthy {
		t.Errorf("pending model must not degrade health, got %s", report.Status)
	}
	if report.Checks["model"] != CheckPending {
		t.Errorf("expected pending model, got %v", report.Checks)
	}
}
