package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/spec-kit/case-service/internal/auth"
	"github.com/spec-kit/case-service/internal/domain"
	"github.com/spec-kit/case-service/internal/service"
)

func TestTokenCommand(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "cli-secret")

	var out, errOut bytes.Buffer
	root := RootCmd("test")
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs([]string{"token", "--subject", "nightly", "--role", "scheduler", "--ttl", "10"})
	if err := root.Execute(); err != nil {
		t.Fatalf("token: %v", err)
	}

	claims, err := auth.NewTokenManager("cli-secret", 10).ParseToken(strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("minted token rejected: %v", err)
	}
	if claims.SubjectID != "nightly" || claims.Role != domain.RoleScheduler {
		t.Errorf("claims = %+v", claims)
	}
	if !strings.HasPrefix(errOut.String(), "expires ") {
		t.Errorf("stderr = %q", errOut.String())
	}

	root = RootCmd("test")
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs([]string{"token", "--role", "root"})
	if err := root.Execute(); err == nil {
		t.Error("unknown role accepted")
	}
}

func TestRequeueNeedsID(t *testing.T) {
	root := RootCmd("test")
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"outbox", "requeue"})
	if err := root.Execute(); err == nil {
		t.Fatal("expected argument error")
	}
}

func TestPrintSweepAndExhausted(t *testing.T) {
	color.NoColor = true
	deadline := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	var buf bytes.Buffer
	printSweep(&buf, deadline.Add(time.Hour), service.SweepResult{
		MissedTotal:   1,
		MissedAlerted: 1,
		Missed:        []domain.Case{{CaseNumber: "CASE-2026-0042", SLADeadline: &deadline}},
	})
	got := buf.String()
	for _, want := range []string{"SLA sweep at 2026-03-02T09:00:00Z", "missed: 1 found, 1 alerted, 0 skipped", "CASE-2026-0042  2026-03-02T08:00:00Z"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}

	buf.Reset()
	printExhausted(&buf, nil)
	if !strings.Contains(buf.String(), "no exhausted entries") {
		t.Errorf("empty output = %q", buf.String())
	}

	buf.Reset()
	lastErr := "messaging endpoint returned 503"
	printExhausted(&buf, []domain.OutboxEntry{{
		ID: "ob-7", Channel: domain.ChannelMessaging, EventType: "sla_missed",
		RetryCount: 5, MaxRetries: 5, LastError: &lastErr, CreatedAt: deadline,
	}})
	if !strings.Contains(buf.String(), "retries 5/5") || !strings.Contains(buf.String(), lastErr) {
		t.Errorf("exhausted output = %q", buf.String())
	}
}
