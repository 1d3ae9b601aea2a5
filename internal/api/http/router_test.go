package http

import (
	"context"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/spec-kit/case-service/internal/api/http/handlers"
	"github.com/spec-kit/case-service/internal/auth"
	"github.com/spec-kit/case-service/internal/domain"
	"github.com/spec-kit/case-service/internal/observability"
	"github.com/spec-kit/case-service/internal/service"
	apperrors "github.com/spec-kit/case-service/pkg/util/errorutil"
)

const (
	caseID          = "6b0f3c2e-4d1a-4e7b-9a51-2f8c0d7e1a01"
	unknownCaseID   = "6b0f3c2e-4d1a-4e7b-9a51-2f8c0d7e1a99"
	caseTypeID      = "0c9d8e7f-1a2b-4c3d-8e4f-5a6b7c8d9e01"
	orderID         = "a1b2c3d4-e5f6-4a7b-8c9d-0e1f2a3b4c01"
	outboxID        = "f0e1d2c3-b4a5-4968-8776-655443322101"
	missingOutboxID = "f0e1d2c3-b4a5-4968-8776-655443322199"
)

type fakeCases struct {
	calls       int
	createInput service.CreateCaseInput
	actor       domain.Actor
	listInput   service.ListCasesInput
	patch       service.CasePatch
	updateErr   error
}

func (f *fakeCases) CreateCase(_ context.Context, input service.CreateCaseInput, actor domain.Actor) (*domain.Case, error) {
	f.calls++
	f.createInput, f.actor = input, actor
	deadline := time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC)
	return &domain.Case{
		ID: caseID, CaseNumber: "CASE-2026-0001", Title: input.Title, CaseTypeID: input.CaseTypeID,
		Status: domain.CaseStatusNew, Severity: domain.SeverityNormal, SLADeadline: &deadline, Version: 1,
	}, nil
}

func (f *fakeCases) UpdateCase(_ context.Context, id string, patch service.CasePatch, actor domain.Actor) (*domain.Case, error) {
	f.calls++
	f.patch, f.actor = patch, actor
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return &domain.Case{ID: id, Status: *patch.Status, Version: 2}, nil
}

func (f *fakeCases) GetCase(_ context.Context, id string) (*domain.Case, error) {
	f.calls++
	return nil, apperrors.NewNotFound("case", map[string]any{"caseId": id})
}

func (f *fakeCases) ListCases(_ context.Context, input service.ListCasesInput) (*service.CaseList, error) {
	f.listInput = input
	return &service.CaseList{
		Cases:      []domain.Case{{ID: caseID}},
		Pagination: service.Pagination{Page: 1, Limit: 20, Total: 1, TotalPages: 1},
	}, nil
}

func (f *fakeCases) ListActivities(context.Context, string, int, int) ([]domain.CaseActivity, error) {
	return []domain.CaseActivity{{ID: "a-1", Type: domain.ActivityCreated, Actor: domain.SystemActor()}}, nil
}

func (f *fakeCases) AddNote(_ context.Context, caseID, text string, actor domain.Actor) (*domain.CaseActivity, error) {
	f.calls++
	f.actor = actor
	return &domain.CaseActivity{ID: "a-2", CaseID: caseID, Type: domain.ActivityNoteAdded, Description: &text, Actor: actor}, nil
}

type fakeSweeper struct{ now time.Time }

func (f *fakeSweeper) Sweep(_ context.Context, now time.Time) (service.SweepResult, error) {
	f.now = now
	return service.SweepResult{MissedTotal: 1, MissedAlerted: 1, Missed: []domain.Case{{ID: "c-9", CaseNumber: "CASE-2026-0009"}}}, nil
}

type fakeOutbox struct{}

func (fakeOutbox) ListExhausted(context.Context, int, int) ([]domain.OutboxEntry, error) {
	return []domain.OutboxEntry{{ID: "ob-1", Channel: domain.ChannelMessaging, Status: domain.OutboxStatusFailed, RetryCount: 5, MaxRetries: 5}}, nil
}

func (fakeOutbox) Requeue(_ context.Context, id string) error {
	if id == missingOutboxID {
		return apperrors.NewNotFound("exhausted_outbox_entry", nil)
	}
	return nil
}

type fakeUsers struct{}

func (fakeUsers) GetByID(_ context.Context, id string) (*domain.SupportUser, error) {
	switch id {
	case "agent":
		return &domain.SupportUser{ID: id, Role: domain.RoleAgent, Active: true}, nil
	case "admin":
		return &domain.SupportUser{ID: id, Role: domain.RoleAdmin, Active: true}, nil
	}
	return nil, pgx.ErrNoRows
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type testServer struct {
	app    *fiber.App
	cases  *fakeCases
	sweep  *fakeSweeper
	tokens *auth.TokenManager
}

func newTestServer(t *testing.T, readyErr error) *testServer {
	t.Helper()
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	logger := zap.NewNop()

	srv := &testServer{
		app:    fiber.New(),
		cases:  &fakeCases{},
		sweep:  &fakeSweeper{},
		tokens: auth.NewTokenManager("test-secret", 5),
	}
	RegisterMiddlewares(srv.app, logger, metrics, time.Second)
	RegisterRoutes(srv.app, RouteConfig{
		Health:         handlers.NewHealthHandler("case-service", "test", map[string]handlers.Pinger{"postgres": pinger{err: readyErr}}),
		Cases:          handlers.NewCasesHandler(srv.cases),
		Ops:            handlers.NewOpsHandler(srv.sweep, fakeOutbox{}),
		AuthMiddleware: auth.NewAuthMiddleware(srv.tokens, fakeUsers{}),
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
	return srv
}

func (s *testServer) do(t *testing.T, method, path, subject string, role domain.Role, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if subject != "" {
		token, _, err := s.tokens.GenerateToken(subject, role)
		if err != nil {
			t.Fatalf("token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	out := map[string]any{}
	_ = json.Unmarshal(raw, &out)
	return resp.StatusCode, out
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestCaseRoutes(t *testing.T) {
	srv := newTestServer(t, nil)

	status, body := srv.do(t, nethttp.MethodPost, "/api/v1/cases", "", "", `{"title":"x","caseTypeId":"`+caseTypeID+`"}`)
	if status != nethttp.StatusUnauthorized || errorCode(body) != apperrors.CodeUnauthorized {
		t.Fatalf("no token: %d %v", status, body)
	}

	status, body = srv.do(t, nethttp.MethodPost, "/api/v1/cases", "agent", domain.RoleAgent, `{"severity":"URGENT"}`)
	if status != nethttp.StatusBadRequest || errorCode(body) != apperrors.CodeValidationFailed {
		t.Fatalf("invalid body: %d %v", status, body)
	}
	details := body["error"].(map[string]any)["details"].(map[string]any)
	for _, key := range []string{"title", "caseTypeId", "severity"} {
		if _, ok := details[key]; !ok {
			t.Errorf("details missing %s: %v", key, details)
		}
	}

	status, body = srv.do(t, nethttp.MethodPost, "/api/v1/cases", "agent", domain.RoleAgent,
		`{"title":"Refund missing","caseTypeId":"`+caseTypeID+`","orderIds":["`+orderID+`"],"autoAssign":true}`)
	if status != nethttp.StatusCreated {
		t.Fatalf("create: %d %v", status, body)
	}
	data := body["data"].(map[string]any)
	if data["caseNumber"] != "CASE-2026-0001" || data["slaDeadline"] != "2026-03-02T09:15:00Z" {
		t.Errorf("data = %v", data)
	}
	if srv.cases.actor != domain.HumanActor("agent") || !*srv.cases.createInput.AutoAssign {
		t.Errorf("actor %+v input %+v", srv.cases.actor, srv.cases.createInput)
	}

	status, body = srv.do(t, nethttp.MethodGet, "/api/v1/cases?status=new,FIXING&sort=severity&page=2&limit=5", "agent", domain.RoleAgent, "")
	if status != nethttp.StatusOK || body["pagination"] == nil {
		t.Fatalf("list: %d %v", status, body)
	}
	in := srv.cases.listInput
	if len(in.Statuses) != 2 || in.Statuses[0] != domain.CaseStatusNew || in.Page != 2 || in.Limit != 5 || in.Sort != "severity" {
		t.Errorf("list input = %+v", in)
	}

	status, body = srv.do(t, nethttp.MethodGet, "/api/v1/cases/"+unknownCaseID, "agent", domain.RoleAgent, "")
	if status != nethttp.StatusNotFound || errorCode(body) != apperrors.CodeNotFound {
		t.Errorf("get: %d %v", status, body)
	}

	status, body = srv.do(t, nethttp.MethodPost, "/api/v1/cases/"+caseID+"/notes", "cron", domain.RoleScheduler, `{"text":"checked"}`)
	if status != nethttp.StatusCreated || !srv.cases.actor.IsSystem() {
		t.Errorf("note: %d %v actor %+v", status, body, srv.cases.actor)
	}
}

func TestUpdateCaseRoute(t *testing.T) {
	srv := newTestServer(t, nil)

	status, body := srv.do(t, nethttp.MethodPatch, "/api/v1/cases/"+caseID, "agent", domain.RoleAgent,
		`{"status":"RESOLVED","resolution":"refunded","version":1}`)
	if status != nethttp.StatusOK {
		t.Fatalf("patch: %d %v", status, body)
	}
	p := srv.cases.patch
	if *p.Status != domain.CaseStatusResolved || *p.Resolution != "refunded" || *p.ExpectedVersion != 1 || p.Title != nil {
		t.Errorf("patch = %+v", p)
	}

	status, body = srv.do(t, nethttp.MethodPatch, "/api/v1/cases/"+caseID, "agent", domain.RoleAgent, `{"status":"DONE"}`)
	if status != nethttp.StatusBadRequest {
		t.Errorf("bad status: %d %v", status, body)
	}

	srv.cases.updateErr = apperrors.NewInvalidTransition("NEW", "RESOLVED")
	status, body = srv.do(t, nethttp.MethodPatch, "/api/v1/cases/"+caseID, "agent", domain.RoleAgent, `{"status":"RESOLVED","resolution":"x"}`)
	if status != nethttp.StatusConflict || errorCode(body) != apperrors.CodeInvalidTransition {
		t.Errorf("invalid transition: %d %v", status, body)
	}

	srv.cases.updateErr = apperrors.NewConflict("locked", nil)
	status, body = srv.do(t, nethttp.MethodPatch, "/api/v1/cases/"+caseID, "agent", domain.RoleAgent, `{"status":"CLOSED"}`)
	if status != nethttp.StatusConflict || errorCode(body) != apperrors.CodeConflict {
		t.Errorf("conflict: %d %v", status, body)
	}
}

func TestOperatorRoutes(t *testing.T) {
	srv := newTestServer(t, nil)

	status, body := srv.do(t, nethttp.MethodPost, "/api/v1/sla/sweep", "agent", domain.RoleAgent, "")
	if status != nethttp.StatusForbidden || errorCode(body) != apperrors.CodeForbidden {
		t.Fatalf("agent sweep: %d %v", status, body)
	}

	status, body = srv.do(t, nethttp.MethodPost, "/api/v1/sla/sweep", "cron", domain.RoleScheduler, `{"now":"2026-03-02T10:00:00Z"}`)
	if status != nethttp.StatusOK {
		t.Fatalf("sweep: %d %v", status, body)
	}
	data := body["data"].(map[string]any)
	if data["missedAlerted"] != float64(1) || len(data["missed"].([]any)) != 1 {
		t.Errorf("data = %v", data)
	}
	if !srv.sweep.now.Equal(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("sweep now = %v", srv.sweep.now)
	}

	status, body = srv.do(t, nethttp.MethodGet, "/api/v1/outbox/exhausted", "admin", domain.RoleAdmin, "")
	if status != nethttp.StatusOK || len(body["data"].([]any)) != 1 {
		t.Errorf("exhausted: %d %v", status, body)
	}

	status, body = srv.do(t, nethttp.MethodPost, "/api/v1/outbox/"+missingOutboxID+"/requeue", "admin", domain.RoleAdmin, "")
	if status != nethttp.StatusNotFound {
		t.Errorf("requeue missing: %d %v", status, body)
	}
	status, _ = srv.do(t, nethttp.MethodPost, "/api/v1/outbox/"+outboxID+"/requeue", "admin", domain.RoleAdmin, "")
	if status != nethttp.StatusOK {
		t.Errorf("requeue: %d", status)
	}
}

func TestHealthMetricsAndUnknownRoutes(t *testing.T) {
	srv := newTestServer(t, nil)
	if status, _ := srv.do(t, nethttp.MethodGet, "/health/live", "", "", ""); status != nethttp.StatusOK {
		t.Errorf("live = %d", status)
	}
	if status, _ := srv.do(t, nethttp.MethodGet, "/health/ready", "", "", ""); status != nethttp.StatusOK {
		t.Errorf("ready = %d", status)
	}
	status, body := srv.do(t, nethttp.MethodGet, "/nowhere", "", "", "")
	if status != nethttp.StatusNotFound || errorCode(body) != apperrors.CodeNotFound {
		t.Errorf("unknown route: %d %v", status, body)
	}

	req := httptest.NewRequest(nethttp.MethodGet, "/metrics", nil)
	resp, err := srv.app.Test(req, -1)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != nethttp.StatusOK || !strings.Contains(string(raw), "case_service_http_requests_total") {
		t.Errorf("metrics = %d %s", resp.StatusCode, raw)
	}

	down := newTestServer(t, context.DeadlineExceeded)
	status, body = down.do(t, nethttp.MethodGet, "/health/ready", "", "", "")
	if status != nethttp.StatusServiceUnavailable || errorCode(body) != "DEPENDENCY_UNAVAILABLE" {
		t.Errorf("not ready: %d %v", status, body)
	}
}

func TestMalformedIDs(t *testing.T) {
	srv := newTestServer(t, nil)

	status, body := srv.do(t, nethttp.MethodPost, "/api/v1/cases", "agent", domain.RoleAgent,
		`{"title":"Refund missing","caseTypeId":"abc","orderIds":["`+orderID+`","o-2"],"ownerId":"nope"}`)
	if status != nethttp.StatusBadRequest || errorCode(body) != apperrors.CodeValidationFailed {
		t.Fatalf("create: %d %v", status, body)
	}
	details := body["error"].(map[string]any)["details"].(map[string]any)
	for _, key := range []string{"caseTypeId", "orderIds[1]", "ownerId"} {
		if details[key] != "must be a UUID" {
			t.Errorf("details[%s] = %v", key, details[key])
		}
	}
	if _, ok := details["orderIds[0]"]; ok {
		t.Errorf("valid order id reported: %v", details)
	}

	paths := []struct {
		method string
		path   string
		body   string
	}{
		{nethttp.MethodGet, "/api/v1/cases/abc", ""},
		{nethttp.MethodPatch, "/api/v1/cases/abc", `{"title":"x"}`},
		{nethttp.MethodGet, "/api/v1/cases/abc/activities", ""},
		{nethttp.MethodPost, "/api/v1/cases/abc/notes", `{"text":"x"}`},
	}
	for _, p := range paths {
		status, body := srv.do(t, p.method, p.path, "agent", domain.RoleAgent, p.body)
		if status != nethttp.StatusNotFound || errorCode(body) != apperrors.CodeNotFound {
			t.Errorf("%s %s: %d %v", p.method, p.path, status, body)
		}
	}
	if srv.cases.calls != 0 {
		t.Errorf("service called %d times for malformed ids", srv.cases.calls)
	}

	status, body = srv.do(t, nethttp.MethodPost, "/api/v1/outbox/ob-1/requeue", "admin", domain.RoleAdmin, "")
	if status != nethttp.StatusNotFound || errorCode(body) != apperrors.CodeNotFound {
		t.Errorf("requeue: %d %v", status, body)
	}

	status, body = srv.do(t, nethttp.MethodPatch, "/api/v1/cases/"+caseID, "agent", domain.RoleAgent, `{"status":"FIXING","ownerId":""}`)
	if status != nethttp.StatusOK || srv.cases.patch.OwnerID == nil || *srv.cases.patch.OwnerID != "" {
		t.Errorf("unassign: %d %v patch %+v", status, body, srv.cases.patch)
	}
	status, body = srv.do(t, nethttp.MethodPatch, "/api/v1/cases/"+caseID, "agent", domain.RoleAgent, `{"status":"FIXING","ownerId":"u-1"}`)
	if status != nethttp.StatusBadRequest {
		t.Errorf("bad owner: %d %v", status, body)
	}
}
