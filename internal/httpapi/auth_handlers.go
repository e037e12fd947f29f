package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"authgrid.org/internal/auth"
	"authgrid.org/internal/obs"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type logoutRequest struct {
	FromAll bool `json:"from_all"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.svc.Register(r.Context(), auth.NewUser{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		handleAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":       user.ID,
		"username": user.Username,
		"email":    user.Email,
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pair, err := a.svc.Login(r.Context(), req.Email, req.Password, fingerprint(r))
	if err != nil {
		handleAuthError(w, err)
		return
	}
	obs.CountTokenPair("login")
	writeJSON(w, http.StatusOK, toTokenPairResponse(pair))
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// Signature validity identifies the caller; whether the token is still
	// usable is decided against the fast-store record inside the service.
	claims, err := a.tokens.ParseRefresh(req.RefreshToken)
	if err != nil {
		obs.CountTokenRefusal()
		handleAuthError(w, err)
		return
	}
	pair, err := a.svc.Refresh(r.Context(), claims.Subject, fingerprint(r), req.RefreshToken)
	if err != nil {
		obs.CountTokenRefusal()
		handleAuthError(w, err)
		return
	}
	obs.CountTokenPair("refresh")
	writeJSON(w, http.StatusOK, toTokenPairResponse(pair))
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "bearer token required")
		return
	}
	var req logoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.svc.Logout(r.Context(), claims.Subject, fingerprint(r), req.FromAll); err != nil {
		handleAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "bearer token required")
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.svc.ChangePassword(r.Context(), claims.Subject, req.OldPassword, req.NewPassword); err != nil {
		handleAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "password_changed"})
}

// handleUserScoped routes /v1/users/{id}/{history|devices|roles}.
func (a *API) handleUserScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}
	userID := parts[0]
	switch parts[1] {
	case "history":
		a.handleUserHistory(w, r, userID)
	case "devices":
		a.handleUserDevices(w, r, userID)
	case "roles":
		a.handleUserRoles(w, r, userID)
	default:
		writeError(w, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleUserHistory(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if _, ok := a.requireGate(w, r, userID, auth.CodeModerator); !ok {
		return
	}
	page := auth.Page{
		Offset: queryInt(r, "offset", 0),
		Limit:  queryInt(r, "limit", 50),
	}
	history, err := a.svc.History(r.Context(), userID, page)
	if err != nil {
		handleAuthError(w, err)
		return
	}
	entries := make([]map[string]any, 0, len(history))
	for _, s := range history {
		entries = append(entries, map[string]any{
			"id":               s.ID,
			"device_id":        s.DeviceID,
			"authenticated_at": s.AuthenticatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": entries})
}

func (a *API) handleUserDevices(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if _, ok := a.requireGate(w, r, userID, auth.CodeModerator); !ok {
		return
	}
	devices, err := a.svc.Devices(r.Context(), userID)
	if err != nil {
		handleAuthError(w, err)
		return
	}
	entries := make([]map[string]any, 0, len(devices))
	for _, d := range devices {
		entries = append(entries, map[string]any{
			"id":          d.ID,
			"fingerprint": d.Fingerprint,
			"created_at":  d.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": entries})
}

type userRoleRequest struct {
	RoleID string `json:"role_id"`
}

func (a *API) handleUserRoles(w http.ResponseWriter, r *http.Request, userID string) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := a.requireGate(w, r, userID, auth.CodeModerator); !ok {
			return
		}
		roles, err := a.svc.Roles(r.Context(), userID)
		if err != nil {
			handleAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"roles": toRoleResponses(roles)})
	case http.MethodPost:
		if _, ok := a.requireGate(w, r, "", auth.CodeModerator); !ok {
			return
		}
		var req userRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.svc.AddRole(r.Context(), userID, req.RoleID); err != nil {
			handleAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"status": "role_added"})
	case http.MethodDelete:
		if _, ok := a.requireGate(w, r, "", auth.CodeModerator); !ok {
			return
		}
		var req userRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.svc.RemoveRole(r.Context(), userID, req.RoleID); err != nil {
			handleAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "role_removed"})
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost, http.MethodDelete)
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
