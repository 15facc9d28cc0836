package httpapi

import (
	"net/http"
	"testing"
)

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	rr := ts.do(t, http.MethodGet, "/healthz", "", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var body struct {
		Status  string `json:"status"`
		Service string `json:"service"`
		Version string `json:"version"`
	}
	decodeBody(t, rr, &body)
	if body.Status != "ok" {
		t.Fatalf("status = %q, want ok", body.Status)
	}
	if body.Version != "test" {
		t.Fatalf("version = %q, want test", body.Version)
	}
}

func TestReadyWithoutDB(t *testing.T) {
	ts := newTestServer(t)
	rr := ts.do(t, http.MethodGet, "/readyz", "", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func TestInfo(t *testing.T) {
	ts := newTestServer(t)
	rr := ts.do(t, http.MethodGet, "/v1/info", "", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var body struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	}
	decodeBody(t, rr, &body)
	if body.Name != "bellwood-auth" {
		t.Fatalf("name = %q", body.Name)
	}
}

func TestUnknownPath(t *testing.T) {
	ts := newTestServer(t)

	// The root path is public and has no resource behind it.
	rr := ts.do(t, http.MethodGet, "/", "", "", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("GET / status = %d, want 404", rr.Code)
	}

	// Everything else is protected, so an unknown path without a token is
	// refused before routing.
	rr = ts.do(t, http.MethodGet, "/nope", "", "", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("GET /nope status = %d, want 401", rr.Code)
	}
}

func TestErrorResponseCarriesRequestID(t *testing.T) {
	ts := newTestServer(t)
	rr := ts.doJSON(t, http.MethodPost, "/api/login", "", "not-json")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	var body struct {
		Error     string `json:"error"`
		RequestID string `json:"request_id"`
	}
	decodeBody(t, rr, &body)
	if body.RequestID == "" {
		t.Fatal("error body missing request_id")
	}
	if body.RequestID != rr.Header().Get("X-Request-ID") {
		t.Fatal("request_id in body does not match response header")
	}
}
