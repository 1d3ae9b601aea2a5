package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/case-service/internal/domain"
	apperrors "github.com/spec-kit/case-service/pkg/util/errorutil"
)

type fakeUsers map[string]domain.SupportUser

func (f fakeUsers) GetByID(_ context.Context, id string) (*domain.SupportUser, error) {
	u, ok := f[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &u, nil
}

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	token, expiresAt, err := tm.GenerateToken("u-1", domain.RoleAgent)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if time.Until(expiresAt) > 5*time.Minute {
		t.Errorf("expiresAt too far: %v", expiresAt)
	}
	claims, err := tm.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.SubjectID != "u-1" || claims.Role != domain.RoleAgent {
		t.Errorf("claims = %+v", claims)
	}

	if _, err := NewTokenManager("other", 5).ParseToken(token); err == nil {
		t.Error("token accepted with the wrong secret")
	}

	expired := NewTokenManager("secret", 1)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _, _ := expired.GenerateToken("u-1", domain.RoleAgent)
	if _, err := tm.ParseToken(old); err == nil {
		t.Error("expired token accepted")
	}

	if _, _, err := tm.GenerateToken("u-1", "ROOT"); err == nil {
		t.Error("unknown role accepted")
	}
}

func newTestApp(tm *TokenManager, users UserLookup, roles ...domain.Role) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return c.SendStatus(fe.Code)
			}
			return c.SendStatus(apperrors.ToDomainError(err).HTTPStatus)
		},
	})
	mw := NewAuthMiddleware(tm, users)
	app.Get("/whoami", mw.Handle, RequireRole(roles...), func(c *fiber.Ctx) error {
		p, _ := PrincipalFromContext(c)
		actor := p.Actor()
		return c.SendString(string(actor.Kind) + ":" + actor.UserID + ":" + string(p.Role))
	})
	return app
}

func TestAuthMiddleware(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	users := fakeUsers{
		"agent": {ID: "agent", Role: domain.RoleAgent, Active: true},
		"admin": {ID: "admin", Role: domain.RoleAdmin, Active: true},
		"left":  {ID: "left", Role: domain.RoleAgent, Active: false},
	}
	sign := func(id string, role domain.Role) string {
		token, _, err := tm.GenerateToken(id, role)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return "Bearer " + token
	}

	tests := []struct {
		name   string
		header string
		roles  []domain.Role
		want   int
	}{
		{name: "missing header", want: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "garbage token", header: "Bearer abc", want: http.StatusUnauthorized},
		{name: "agent", header: sign("agent", domain.RoleAgent), want: http.StatusOK},
		{name: "unknown user", header: sign("ghost", domain.RoleAgent), want: http.StatusUnauthorized},
		{name: "inactive user", header: sign("left", domain.RoleAgent), want: http.StatusUnauthorized},
		{name: "scheduler", header: sign("cron", domain.RoleScheduler), roles: []domain.Role{domain.RoleScheduler}, want: http.StatusOK},
		{name: "agent on admin route", header: sign("agent", domain.RoleAgent), roles: []domain.Role{domain.RoleAdmin}, want: http.StatusForbidden},
		{name: "stored role wins", header: sign("agent", domain.RoleAdmin), roles: []domain.Role{domain.RoleAdmin}, want: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(tm, users, tt.roles...)
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestSchedulerActsAsSystem(t *testing.T) {
	p := &Principal{SubjectID: "cron", Role: domain.RoleScheduler}
	if !p.Actor().IsSystem() {
		t.Error("scheduler must act as system")
	}
	p = &Principal{SubjectID: "u-1", Role: domain.RoleAgent}
	if a := p.Actor(); a.IsSystem() || a.UserID != "u-1" {
		t.Errorf("actor = %+v", a)
	}
}
