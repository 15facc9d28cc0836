package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BidumanADT/BellwoodAuthServer/internal/auth"
	"github.com/BidumanADT/BellwoodAuthServer/internal/store/memory"
)

const testSigningSecret = "httpapi-test-secret-0123456789"

type testServer struct {
	handler http.Handler
	store   *memory.Store
}

// newTestServer builds the full middleware-wrapped handler over a seeded
// in-memory store.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.New()
	if err := store.Seed(context.Background()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	minter, err := auth.NewTokenMinter(testSigningSecret)
	if err != nil {
		t.Fatalf("NewTokenMinter: %v", err)
	}
	refresh := auth.NewMemoryRefreshTokenStore()
	issuer, err := auth.NewTokenIssuanceService(store, minter, refresh)
	if err != nil {
		t.Fatalf("NewTokenIssuanceService: %v", err)
	}
	provisioner, err := auth.NewRoleProvisioningService(store, nil)
	if err != nil {
		t.Fatalf("NewRoleProvisioningService: %v", err)
	}
	admin, err := auth.NewUserAdminService(store, nil)
	if err != nil {
		t.Fatalf("NewUserAdminService: %v", err)
	}

	api := New(issuer, provisioner, admin, minter, store, ReadyProbe{}, "test")
	return &testServer{handler: api.Handler(), store: store}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body string, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func (ts *testServer) doJSON(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	return ts.do(t, method, path, token, body, "application/json")
}

func (ts *testServer) doForm(t *testing.T, path, body string) *httptest.ResponseRecorder {
	return ts.do(t, http.MethodPost, path, "", body, "application/x-www-form-urlencoded")
}

// login performs /api/login and returns the decoded response.
func (ts *testServer) login(t *testing.T, username, password string) loginResponse {
	t.Helper()
	body := fmt.Sprintf(`{"username":%q,"password":%q}`, username, password)
	rr := ts.doJSON(t, http.MethodPost, "/api/login", "", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("login %s: status %d, body %s", username, rr.Code, rr.Body.String())
	}
	var resp loginResponse
	decodeBody(t, rr, &resp)
	return resp
}

// userID resolves a seeded username to its store id.
func (ts *testServer) userID(t *testing.T, username string) string {
	t.Helper()
	identity, err := ts.store.FindByUsername(context.Background(), username)
	if err != nil {
		t.Fatalf("FindByUsername(%s): %v", username, err)
	}
	return identity.ID
}

func farFuture() time.Time {
	return time.Now().Add(24 * time.Hour)
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
}
