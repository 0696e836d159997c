package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/wardenhq/core/internal/infrastructure/config"
	"github.com/wardenhq/core/internal/infrastructure/logger"
	"github.com/wardenhq/core/internal/state"
)

func newTestServer(t *testing.T, configPayload string) (*Server, *state.Store) {
	t.Helper()

	log := logger.NewNop()

	cfg := config.Default()
	if configPayload != "" {
		path := filepath.Join(t.TempDir(), "warden.json")
		if err := os.WriteFile(path, []byte(configPayload), 0o600); err != nil {
			t.Fatalf("writing config: %v", err)
		}
		loaded, err := config.Load(path, log)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		cfg = loaded
	}

	store, err := state.Open(filepath.Join(t.TempDir(), "warden.db"), log)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	srv, err := New(cfg, store, log)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv, store
}

func request(srv *Server, method, path, body, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func TestServer_HealthEndpoints(t *testing.T) {
	srv, store := newTestServer(t, "")

	for _, path := range []string{"/health", "/health/detailed", "/ready"} {
		rec := request(srv, http.MethodGet, path, "", "")
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want %d", path, rec.Code, http.StatusOK)
		}
	}

	rec := request(srv, http.MethodGet, "/health/detailed", "", "")
	var detailed map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &detailed); err != nil {
		t.Fatalf("decoding detailed health: %v", err)
	}
	if detailed["instance_id"] != store.InstanceID() {
		t.Errorf("instance_id = %v, want %q", detailed["instance_id"], store.InstanceID())
	}
}

func TestServer_ReadinessReflectsStateFile(t *testing.T) {
	srv, store := newTestServer(t, "")

	if err := os.Remove(store.Path()); err != nil {
		t.Fatalf("removing state file: %v", err)
	}

	rec := request(srv, http.MethodGet, "/ready", "", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("GET /ready = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestServer_AuthDisabled(t *testing.T) {
	srv, _ := newTestServer(t, "")

	rec := request(srv, http.MethodGet, "/api/v1/state", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("GET /api/v1/state without credentials = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestServer_AuthRequired(t *testing.T) {
	srv, _ := newTestServer(t, `{"ipc_password":"hunter2"}`)

	tests := []struct {
		name     string
		bearer   string
		wantCode int
	}{
		{"no credentials", "", http.StatusUnauthorized},
		{"wrong password", "letmein", http.StatusUnauthorized},
		{"correct password", "hunter2", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := request(srv, http.MethodGet, "/api/v1/state", "", tt.bearer)
			if rec.Code != tt.wantCode {
				t.Errorf("GET /api/v1/state = %d, want %d", rec.Code, tt.wantCode)
			}
		})
	}

	// Health endpoints stay open.
	rec := request(srv, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("GET /health = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestServer_BcryptPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("open sesame"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("generating hash: %v", err)
	}

	payload, err := json.Marshal(map[string]string{
		"ipc_password":        string(hash),
		"ipc_password_format": "bcrypt",
	})
	if err != nil {
		t.Fatalf("building config payload: %v", err)
	}

	srv, _ := newTestServer(t, string(payload))

	if rec := request(srv, http.MethodGet, "/api/v1/state", "", "open sesame"); rec.Code != http.StatusOK {
		t.Errorf("correct bcrypt credential = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec := request(srv, http.MethodGet, "/api/v1/state", "", "wrong"); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong bcrypt credential = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestServer_MutationFlow(t *testing.T) {
	srv, store := newTestServer(t, "")

	rec := request(srv, http.MethodPut, "/api/v1/state/login-key", `{"login_key":"resume-me"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT login-key = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := store.LoginKey(); got != "resume-me" {
		t.Errorf("login key = %q, want %q", got, "resume-me")
	}

	rec = request(srv, http.MethodPost, "/api/v1/state/sets/idling-priority", `{"ids":[730,440]}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("POST sets/idling-priority = %d, body %s", rec.Code, rec.Body.String())
	}
	if !store.IsIdlingPriority(730) || !store.IsIdlingPriority(440) {
		t.Error("added IDs missing from the store")
	}

	rec = request(srv, http.MethodDelete, "/api/v1/state/sets/idling-priority", `{"ids":[730]}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("DELETE sets/idling-priority = %d, body %s", rec.Code, rec.Body.String())
	}
	if store.IsIdlingPriority(730) {
		t.Error("removed ID still present")
	}

	rec = request(srv, http.MethodPost, "/api/v1/state/sets/favourites", `{"ids":[1]}`, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown set = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestServer_ConfigViewOmitsPassword(t *testing.T) {
	srv, _ := newTestServer(t, `{"ipc_password":"hunter2"}`)

	rec := request(srv, http.MethodGet, "/api/v1/config", "", "hunter2")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/v1/config = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "hunter2") {
		t.Error("config view leaks the IPC password")
	}
}

func TestServer_MetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, "")

	rec := request(srv, http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "warden_state_saves_total") {
		t.Error("metrics output missing state save counter")
	}
}
