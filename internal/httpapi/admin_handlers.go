package httpapi

import (
	"net/http"

	"github.com/c-f-an/tov-nextjs-sub002/internal/audit"
	"github.com/c-f-an/tov-nextjs-sub002/internal/auth"
)

const resourceUser = "user"

type updateUserRequest struct {
	Name          *string `json:"name"`
	Role          *string `json:"role"`
	EmailVerified *bool   `json:"emailVerified"`
}

type bulkDeleteRequest struct {
	IDs []string `json:"ids"`
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := a.svc.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user.Identity})
}

func (a *API) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := decodeStrictJSON(w, r, &req); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	upd := auth.UserUpdate{Name: req.Name, EmailVerified: req.EmailVerified}
	if req.Role != nil {
		role, ok := auth.ParseRole(*req.Role)
		if !ok {
			a.writeServiceError(w, r, &auth.ValidationError{Field: "role", Message: "role must be USER or ADMIN"})
			return
		}
		upd.Role = &role
	}
	id := r.PathValue("id")
	before, after, err := a.svc.UpdateUser(r.Context(), id, upd)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.record(r, audit.UpdateUser, after.ID, userDiff(before.Identity, after.Identity))
	writeJSON(w, http.StatusOK, map[string]any{"user": after.Identity})
}

func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	target, err := a.svc.GetUser(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	if err := a.svc.DeleteUser(r.Context(), id); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.record(r, audit.DeleteUser, id, map[string]any{
		"email": target.Email,
		"role":  string(target.Role),
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleBulkDeleteUsers(w http.ResponseWriter, r *http.Request) {
	var req bulkDeleteRequest
	if err := decodeStrictJSON(w, r, &req); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	n, err := a.svc.DeleteUsers(r.Context(), req.IDs)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.record(r, audit.BulkDeleteUsers, "", map[string]any{
		"ids":     req.IDs,
		"deleted": n,
	})
	writeJSON(w, http.StatusOK, map[string]any{"deleted": n})
}

// record writes the audit entry for a completed mutation. The actor is the
// principal admitted by RequireAdmin.
func (a *API) record(r *http.Request, action audit.Action, resourceID string, metadata map[string]any) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	ip, ua := audit.FromRequest(r)
	a.audit.Log(r.Context(), audit.Entry{
		ActorID:      principal.ID,
		Action:       action,
		ResourceType: resourceUser,
		ResourceID:   resourceID,
		Metadata:     metadata,
		IP:           ip,
		UserAgent:    ua,
	})
}

// userDiff returns {field: {from, to}} for every changed field.
func userDiff(before, after auth.Identity) map[string]any {
	diff := map[string]any{}
	change := func(field string, from, to any) {
		if from != to {
			diff[field] = map[string]any{"from": from, "to": to}
		}
	}
	change("name", before.Name, after.Name)
	change("role", string(before.Role), string(after.Role))
	change("emailVerified", before.EmailVerified, after.EmailVerified)
	return diff
}
