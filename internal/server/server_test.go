package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sweatpact/sweatpact/internal/auth"
	"github.com/sweatpact/sweatpact/internal/database"
	"github.com/sweatpact/sweatpact/internal/middleware"
	"github.com/sweatpact/sweatpact/internal/model"
	"github.com/sweatpact/sweatpact/internal/store"
)

var testSecret = []byte("test-secret")

func setupServer(t *testing.T) (*Server, string) {
	t.Helper()

	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	srv := New(db, Config{
		JWTSecret: testSecret,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	u, err := store.NewUserStore(db).Create(&model.User{
		Email:            "member@example.com",
		Timezone:         "UTC",
		SubscriptionTier: model.TierPro,
		IsActive:         true,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return srv, u.ID
}

func signToken(t *testing.T, sub, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestHealthIsPublic(t *testing.T) {
	srv, _ := setupServer(t)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q, want ok", body["status"])
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	srv, userID := setupServer(t)
	router := srv.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/streak", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status without token = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/streak", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, userID, auth.RoleMember))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status with token = %d, want 200: %s", rec.Code, rec.Body)
	}
}

func TestServiceRoutesRejectMembers(t *testing.T) {
	srv, userID := setupServer(t)
	router := srv.Router()

	body := strings.NewReader(`{"user_id":"` + userID + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/internal/calls/schedule-daily", body)
	req.Header.Set("Authorization", "Bearer "+signToken(t, userID, auth.RoleMember))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("member status = %d, want 403", rec.Code)
	}

	body = strings.NewReader(`{"user_id":"` + userID + `"}`)
	req = httptest.NewRequest(http.MethodPost, "/internal/calls/schedule-daily", body)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "scheduler", auth.RoleService))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("service status = %d, want 200: %s", rec.Code, rec.Body)
	}
}

func TestAdminRoutesRejectMembers(t *testing.T) {
	srv, userID := setupServer(t)
	router := srv.Router()

	req := httptest.NewRequest(http.MethodPost, "/admin/donations", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer "+signToken(t, userID, auth.RoleMember))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("member status = %d, want 403", rec.Code)
	}
}

func TestWebhookIsPublic(t *testing.T) {
	srv, _ := setupServer(t)

	// No token: the provider cannot authenticate as a member. An unknown
	// call yields 404, proving the route is reachable without auth.
	req := httptest.NewRequest(http.MethodPost, "/webhooks/calls",
		strings.NewReader(`{"event":"call_no_answer","call_id":"none"}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404: %s", rec.Code, rec.Body)
	}
}

func TestAdminSetsWalletLimits(t *testing.T) {
	srv, userID := setupServer(t)
	router := srv.Router()

	body := strings.NewReader(`{"monthly_limit_pence":5000,"daily_cap_pence":500}`)
	req := httptest.NewRequest(http.MethodPut, "/admin/wallets/"+userID+"/limits", body)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "ops", auth.RoleAdmin))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}

	var view map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatal(err)
	}
	if view["monthly_limit"].(float64) != 5000 || view["daily_cap"].(float64) != 500 {
		t.Errorf("limits = %v/%v, want 5000/500", view["monthly_limit"], view["daily_cap"])
	}

	// Members cannot reach the route.
	body = strings.NewReader(`{"monthly_limit_pence":5000,"daily_cap_pence":500}`)
	req = httptest.NewRequest(http.MethodPut, "/admin/wallets/"+userID+"/limits", body)
	req.Header.Set("Authorization", "Bearer "+signToken(t, userID, auth.RoleMember))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("member status = %d, want 403", rec.Code)
	}
}
