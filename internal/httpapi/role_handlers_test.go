package httpapi

import (
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"testing"
)

func TestSetRoleRequiresAuth(t *testing.T) {
	ts := newTestServer(t)
	target := ts.userID(t, "alice")

	rr := ts.doJSON(t, http.MethodPut, "/v1/users/"+target+"/role", "", `{"role":"driver"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestSetRoleRequiresAdmin(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.login(t, "alice", "Pass123!")
	target := ts.userID(t, "bob")

	rr := ts.doJSON(t, http.MethodPut, "/v1/users/"+target+"/role", alice.AccessToken, `{"role":"driver"}`)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rr.Code)
	}
}

func TestSetRoleReplacesAndIsIdempotent(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.login(t, "root", "ChangeMe123!")
	target := ts.userID(t, "alice")
	path := "/v1/users/" + target + "/role"

	rr := ts.doJSON(t, http.MethodPut, path, admin.AccessToken, `{"role":"driver"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var first roleChangeResponse
	decodeBody(t, rr, &first)
	if !first.Changed {
		t.Fatal("first call changed = false")
	}
	if want := []string{"booker"}; !reflect.DeepEqual(first.PreviousRoles, want) {
		t.Fatalf("previous_roles = %v, want %v", first.PreviousRoles, want)
	}
	if want := []string{"driver"}; !reflect.DeepEqual(first.Roles, want) {
		t.Fatalf("roles = %v, want %v", first.Roles, want)
	}

	rr = ts.doJSON(t, http.MethodPut, path, admin.AccessToken, `{"role":"driver"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("second status = %d", rr.Code)
	}
	var second roleChangeResponse
	decodeBody(t, rr, &second)
	if second.Changed {
		t.Fatal("second call changed = true, want idempotent no-op")
	}
	if want := []string{"driver"}; !reflect.DeepEqual(second.Roles, want) {
		t.Fatalf("roles = %v, want %v", second.Roles, want)
	}
}

func TestSetRoleInvalidRole(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.login(t, "root", "ChangeMe123!")
	target := ts.userID(t, "alice")

	rr := ts.doJSON(t, http.MethodPut, "/v1/users/"+target+"/role", admin.AccessToken, `{"role":"superuser"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	var resp struct {
		Error string `json:"error"`
	}
	decodeBody(t, rr, &resp)
	if !strings.Contains(resp.Error, "superuser") {
		t.Fatalf("error %q does not name the offending role", resp.Error)
	}
}

func TestSetRoleUnknownUser(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.login(t, "root", "ChangeMe123!")

	rr := ts.doJSON(t, http.MethodPut, "/v1/users/ghost/role", admin.AccessToken, `{"role":"driver"}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestSetRoleMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.login(t, "root", "ChangeMe123!")
	target := ts.userID(t, "alice")

	rr := ts.doJSON(t, http.MethodPost, "/v1/users/"+target+"/role", admin.AccessToken, `{"role":"driver"}`)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rr.Code)
	}
}

func TestGetRoles(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.login(t, "root", "ChangeMe123!")
	target := ts.userID(t, "diana")

	rr := ts.do(t, http.MethodGet, "/v1/users/"+target+"/roles", admin.AccessToken, "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		UserID string   `json:"user_id"`
		Roles  []string `json:"roles"`
	}
	decodeBody(t, rr, &resp)
	if resp.UserID != target {
		t.Fatalf("user_id = %q, want %q", resp.UserID, target)
	}
	if want := []string{"dispatcher"}; !reflect.DeepEqual(resp.Roles, want) {
		t.Fatalf("roles = %v, want %v", resp.Roles, want)
	}
}

func TestGetRolesUnknownUser(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.login(t, "root", "ChangeMe123!")

	rr := ts.do(t, http.MethodGet, "/v1/users/ghost/roles", admin.AccessToken, "", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestUpdateRolesReplacesSet(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.login(t, "root", "ChangeMe123!")
	target := ts.userID(t, "alice")
	path := "/v1/users/" + target + "/roles"

	rr := ts.doJSON(t, http.MethodPut, path, admin.AccessToken, `{"roles":["dispatcher","admin"]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var resp roleChangeResponse
	decodeBody(t, rr, &resp)
	if want := []string{"booker"}; !reflect.DeepEqual(resp.PreviousRoles, want) {
		t.Fatalf("previous_roles = %v, want %v", resp.PreviousRoles, want)
	}
	if want := []string{"dispatcher", "admin"}; !reflect.DeepEqual(resp.Roles, want) {
		t.Fatalf("roles = %v, want %v", resp.Roles, want)
	}
}

func TestUpdateRolesEmptySetClears(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.login(t, "root", "ChangeMe123!")
	target := ts.userID(t, "alice")

	rr := ts.doJSON(t, http.MethodPut, "/v1/users/"+target+"/roles", admin.AccessToken, `{"roles":[]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	// The roles key must be an empty array, never null.
	if body := rr.Body.String(); !strings.Contains(body, `"roles":[]`) {
		t.Fatalf("body %s missing empty roles array", body)
	}
}

func TestUserScopedUnknownResource(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.login(t, "root", "ChangeMe123!")
	target := ts.userID(t, "alice")

	for _, path := range []string{
		"/v1/users/" + target + "/password",
		"/v1/users/by-uid",
		fmt.Sprintf("/v1/users/%s/roles/extra", target),
	} {
		rr := ts.do(t, http.MethodGet, path, admin.AccessToken, "", "")
		if rr.Code != http.StatusNotFound {
			t.Fatalf("GET %s status = %d, want 404", path, rr.Code)
		}
	}
}
