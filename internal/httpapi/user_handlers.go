package httpapi

import (
	"net/http"
	"strconv"

	"github.com/BidumanADT/BellwoodAuthServer/internal/audit"
	"github.com/BidumanADT/BellwoodAuthServer/internal/auth"
	"github.com/BidumanADT/BellwoodAuthServer/internal/obs"
)

type createUserRequest struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
	UID      string   `json:"uid"`
}

type setUIDRequest struct {
	UID string `json:"uid"`
}

type userResponse struct {
	UserID   string   `json:"user_id"`
	Username string   `json:"username"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles"`
	UID      string   `json:"uid,omitempty"`
	Disabled bool     `json:"disabled"`
}

func toUserResponse(s auth.UserSummary) userResponse {
	return userResponse{
		UserID:   s.ID,
		Username: s.Username,
		Email:    s.Email,
		Roles:    emptyIfNil(s.Roles),
		UID:      s.UID,
		Disabled: s.Disabled,
	}
}

// handleUsers serves the /v1/users collection: paged listing and creation.
func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	if !a.userAdminReady(w, r) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.handleListUsers(w, r)
	case http.MethodPost:
		a.handleCreateUser(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if !a.ensureAdmin(w, r) {
		return
	}
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	summaries, err := a.admin.ListUsers(r.Context(), limit, offset)
	if err != nil {
		handleProvisioningError(w, r, err)
		return
	}
	users := make([]userResponse, 0, len(summaries))
	for _, s := range summaries {
		users = append(users, toUserResponse(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"users":  users,
		"limit":  limit,
		"offset": offset,
	})
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	if !a.ensureAdmin(w, r) {
		return
	}
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := a.admin.CreateUser(r.Context(), auth.CreateUserParams{
		Username: req.Username,
		Password: req.Password,
		Email:    req.Email,
		Roles:    req.Roles,
		UID:      req.UID,
	})
	if err != nil {
		obs.ObserveUserAdmin("create", "failure")
		handleProvisioningError(w, r, err)
		return
	}
	obs.ObserveUserAdmin("create", "success")
	_ = audit.LogEvent(r.Context(), "auth.user.created", map[string]any{
		"target_user": summary.ID,
		"username":    summary.Username,
		"roles":       summary.Roles,
		"uid":         summary.UID,
	})
	writeJSON(w, http.StatusCreated, toUserResponse(summary))
}

// handleSetUserUID replaces the external uid bound to a user.
func (a *API) handleSetUserUID(w http.ResponseWriter, r *http.Request, userID string) {
	if !a.userAdminReady(w, r) {
		return
	}
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	if !a.ensureAdmin(w, r) {
		return
	}
	var req setUIDRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := a.admin.SetUserUID(r.Context(), userID, req.UID)
	if err != nil {
		obs.ObserveUserAdmin("set_uid", "failure")
		handleProvisioningError(w, r, err)
		return
	}
	obs.ObserveUserAdmin("set_uid", "success")
	_ = audit.LogEvent(r.Context(), "auth.user.uid_updated", map[string]any{
		"target_user": userID,
		"uid":         summary.UID,
	})
	writeJSON(w, http.StatusOK, toUserResponse(summary))
}

// handleUserEnabled disables or re-enables an account.
func (a *API) handleUserEnabled(w http.ResponseWriter, r *http.Request, userID string, enable bool) {
	if !a.userAdminReady(w, r) {
		return
	}
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	if !a.ensureAdmin(w, r) {
		return
	}

	var (
		summary auth.UserSummary
		err     error
	)
	operation, event := "disable", "auth.user.disabled"
	if enable {
		operation, event = "enable", "auth.user.enabled"
		summary, err = a.admin.EnableUser(r.Context(), userID)
	} else {
		summary, err = a.admin.DisableUser(r.Context(), userID)
	}
	if err != nil {
		obs.ObserveUserAdmin(operation, "failure")
		handleProvisioningError(w, r, err)
		return
	}
	obs.ObserveUserAdmin(operation, "success")
	_ = audit.LogEvent(r.Context(), event, map[string]any{
		"target_user": userID,
	})
	writeJSON(w, http.StatusOK, toUserResponse(summary))
}

func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request, userID string) {
	if !a.userAdminReady(w, r) {
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if !a.ensureAdmin(w, r) {
		return
	}

	if err := a.admin.DeleteUser(r.Context(), userID); err != nil {
		obs.ObserveUserAdmin("delete", "failure")
		handleProvisioningError(w, r, err)
		return
	}
	obs.ObserveUserAdmin("delete", "success")
	_ = audit.LogEvent(r.Context(), "auth.user.deleted", map[string]any{
		"target_user": userID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleUserByUID(w http.ResponseWriter, r *http.Request, uid string) {
	if !a.userAdminReady(w, r) {
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensureAdmin(w, r) {
		return
	}

	summary, err := a.admin.FindByUID(r.Context(), uid)
	if err != nil {
		handleProvisioningError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(summary))
}

func (a *API) userAdminReady(w http.ResponseWriter, r *http.Request) bool {
	if a.admin == nil {
		writeError(w, r, http.StatusServiceUnavailable, "user admin service unavailable")
		return false
	}
	return true
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
