package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/BidumanADT/BellwoodAuthServer/internal/audit"
	"github.com/BidumanADT/BellwoodAuthServer/internal/auth"
	"github.com/BidumanADT/BellwoodAuthServer/internal/obs"
)

type setRoleRequest struct {
	Role string `json:"role"`
}

type updateRolesRequest struct {
	Roles []string `json:"roles"`
}

type roleChangeResponse struct {
	UserID        string   `json:"user_id"`
	PreviousRoles []string `json:"previous_roles"`
	Roles         []string `json:"roles"`
	Changed       bool     `json:"changed"`
}

// handleUserScoped routes everything under /v1/users/: per-user role and
// uid updates, disable/enable, deletion and the by-uid lookup.
func (a *API) handleUserScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	path = strings.Trim(path, "/")
	parts := strings.Split(path, "/")
	if parts[0] == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if parts[0] == "by-uid" {
		if len(parts) != 2 {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		a.handleUserByUID(w, r, parts[1])
		return
	}
	userID := parts[0]
	if len(parts) == 1 {
		a.handleDeleteUser(w, r, userID)
		return
	}
	if len(parts) != 2 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch parts[1] {
	case "role":
		a.handleSetRole(w, r, userID)
	case "roles":
		a.handleRoles(w, r, userID)
	case "uid":
		a.handleSetUserUID(w, r, userID)
	case "disable":
		a.handleUserEnabled(w, r, userID, false)
	case "enable":
		a.handleUserEnabled(w, r, userID, true)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleSetRole(w http.ResponseWriter, r *http.Request, userID string) {
	if a.provisioner == nil {
		writeError(w, r, http.StatusServiceUnavailable, "provisioning service unavailable")
		return
	}
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	if !a.ensureAdmin(w, r) {
		return
	}
	var req setRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	change, err := a.provisioner.SetRole(r.Context(), userID, req.Role)
	if err != nil {
		obs.ObserveRoleChange("set_role", "failure")
		handleProvisioningError(w, r, err)
		return
	}
	obs.ObserveRoleChange("set_role", "success")
	_ = audit.LogEvent(r.Context(), "auth.role.set", map[string]any{
		"target_user": userID,
		"previous":    change.Previous,
		"roles":       change.Current,
		"changed":     change.Changed,
	})
	writeJSON(w, http.StatusOK, roleChangeResponse{
		UserID:        userID,
		PreviousRoles: emptyIfNil(change.Previous),
		Roles:         emptyIfNil(change.Current),
		Changed:       change.Changed,
	})
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request, userID string) {
	if a.provisioner == nil {
		writeError(w, r, http.StatusServiceUnavailable, "provisioning service unavailable")
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.handleGetRoles(w, r, userID)
	case http.MethodPut:
		a.handleUpdateRoles(w, r, userID)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

func (a *API) handleGetRoles(w http.ResponseWriter, r *http.Request, userID string) {
	if !a.ensureAdmin(w, r) {
		return
	}
	if _, err := a.store.Identities(r.Context()).FindByID(r.Context(), userID); err != nil {
		handleProvisioningError(w, r, err)
		return
	}
	roles, err := a.store.Roles(r.Context()).RolesForUser(r.Context(), userID)
	if err != nil {
		handleProvisioningError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"roles":   emptyIfNil(roles),
	})
}

func (a *API) handleUpdateRoles(w http.ResponseWriter, r *http.Request, userID string) {
	if !a.ensureAdmin(w, r) {
		return
	}
	var req updateRolesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	change, err := a.provisioner.UpdateRoles(r.Context(), userID, req.Roles)
	if err != nil {
		obs.ObserveRoleChange("update_roles", "failure")
		handleProvisioningError(w, r, err)
		return
	}
	obs.ObserveRoleChange("update_roles", "success")
	_ = audit.LogEvent(r.Context(), "auth.roles.updated", map[string]any{
		"target_user": userID,
		"previous":    change.Previous,
		"roles":       change.Current,
	})
	writeJSON(w, http.StatusOK, roleChangeResponse{
		UserID:        userID,
		PreviousRoles: emptyIfNil(change.Previous),
		Roles:         emptyIfNil(change.Current),
		Changed:       change.Changed,
	})
}

// ensureAdmin requires an authenticated principal holding the admin role.
func (a *API) ensureAdmin(w http.ResponseWriter, r *http.Request) bool {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return false
	}
	if !principal.HasRole("admin") {
		writeError(w, r, http.StatusForbidden, "admin role required")
		return false
	}
	return true
}

func handleProvisioningError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidRole), errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "user not found")
	case errors.Is(err, auth.ErrProvisioningPartial):
		writeError(w, r, http.StatusInternalServerError, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "role provisioning failed")
	}
}

func emptyIfNil(roles []string) []string {
	if roles == nil {
		return []string{}
	}
	return roles
}
