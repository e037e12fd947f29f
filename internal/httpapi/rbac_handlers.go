package httpapi

import (
	"net/http"
	"strings"

	"authgrid.org/internal/auth"
)

type roleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type roleUpdateRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type permissionRequest struct {
	Name        string `json:"name"`
	Code        int    `json:"code"`
	Description string `json:"description"`
}

type permissionUpdateRequest struct {
	Name        *string `json:"name"`
	Code        *int    `json:"code"`
	Description *string `json:"description"`
}

type rolePermissionRequest struct {
	PermissionID string `json:"permission_id"`
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireGate(w, r, "", auth.CodeModerator); !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		roles, err := a.svc.ListRoles(r.Context())
		if err != nil {
			handleAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"roles": toRoleResponses(roles)})
	case http.MethodPost:
		var req roleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.svc.CreateRole(r.Context(), req.Name, req.Description)
		if err != nil {
			handleAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toRoleResponse(role))
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

// handleRoleScoped routes /v1/roles/{id} and /v1/roles/{id}/permissions.
func (a *API) handleRoleScoped(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireGate(w, r, "", auth.CodeModerator); !ok {
		return
	}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/roles/"), "/")
	parts := strings.Split(path, "/")
	if parts[0] == "" {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}
	roleID := parts[0]
	switch {
	case len(parts) == 1:
		a.handleRole(w, r, roleID)
	case len(parts) == 2 && parts[1] == "permissions":
		a.handleRolePermissions(w, r, roleID)
	default:
		writeError(w, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleRole(w http.ResponseWriter, r *http.Request, roleID string) {
	switch r.Method {
	case http.MethodGet:
		role, perms, err := a.svc.GetRole(r.Context(), roleID)
		if err != nil {
			handleAuthError(w, err)
			return
		}
		resp := toRoleResponse(role)
		resp["permissions"] = toPermissionResponses(perms)
		writeJSON(w, http.StatusOK, resp)
	case http.MethodPatch:
		var req roleUpdateRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.svc.UpdateRole(r.Context(), roleID, auth.RoleUpdate{
			Name:        req.Name,
			Description: req.Description,
		})
		if err != nil {
			handleAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toRoleResponse(role))
	case http.MethodDelete:
		if err := a.svc.DeleteRole(r.Context(), roleID); err != nil {
			handleAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) handleRolePermissions(w http.ResponseWriter, r *http.Request, roleID string) {
	switch r.Method {
	case http.MethodPost:
		var req rolePermissionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.svc.AttachPermission(r.Context(), roleID, req.PermissionID); err != nil {
			handleAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"status": "permission_attached"})
	case http.MethodDelete:
		var req rolePermissionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.svc.DetachPermission(r.Context(), roleID, req.PermissionID); err != nil {
			handleAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "permission_detached"})
	default:
		methodNotAllowed(w, http.MethodPost, http.MethodDelete)
	}
}

func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireGate(w, r, "", auth.CodeModerator); !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		perms, err := a.svc.ListPermissions(r.Context())
		if err != nil {
			handleAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"permissions": toPermissionResponses(perms)})
	case http.MethodPost:
		var req permissionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		perm, err := a.svc.CreatePermission(r.Context(), req.Name, req.Code, req.Description)
		if err != nil {
			handleAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toPermissionResponse(perm))
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handlePermissionScoped(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireGate(w, r, "", auth.CodeModerator); !ok {
		return
	}
	permID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/permissions/"), "/")
	if permID == "" || strings.Contains(permID, "/") {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		perm, err := a.svc.GetPermission(r.Context(), permID)
		if err != nil {
			handleAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toPermissionResponse(perm))
	case http.MethodPatch:
		var req permissionUpdateRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		perm, err := a.svc.UpdatePermission(r.Context(), permID, auth.PermissionUpdate{
			Name:        req.Name,
			Code:        req.Code,
			Description: req.Description,
		})
		if err != nil {
			handleAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toPermissionResponse(perm))
	case http.MethodDelete:
		if err := a.svc.DeletePermission(r.Context(), permID); err != nil {
			handleAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func toRoleResponse(role *auth.Role) map[string]any {
	return map[string]any{
		"id":          role.ID,
		"name":        role.Name,
		"description": role.Description,
		"protected":   role.Protected,
	}
}

func toRoleResponses(roles []*auth.Role) []map[string]any {
	out := make([]map[string]any, 0, len(roles))
	for _, role := range roles {
		out = append(out, toRoleResponse(role))
	}
	return out
}

func toPermissionResponse(perm *auth.Permission) map[string]any {
	return map[string]any{
		"id":          perm.ID,
		"name":        perm.Name,
		"code":        perm.Code,
		"description": perm.Description,
		"protected":   perm.Protected,
	}
}

func toPermissionResponses(perms []*auth.Permission) []map[string]any {
	out := make([]map[string]any, 0, len(perms))
	for _, perm := range perms {
		out = append(out, toPermissionResponse(perm))
	}
	return out
}
