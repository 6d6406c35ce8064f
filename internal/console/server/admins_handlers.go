package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/courierops/console/internal/console/admins"
	"github.com/courierops/console/internal/console/audit"
	"github.com/courierops/console/internal/console/auth"
)

func (s *Server) handleListAdmins(w http.ResponseWriter, r *http.Request) {
	if s.adminStore == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "unavailable", "Admin store unavailable")
		return
	}

	list, err := s.adminStore.List()
	if err != nil {
		s.logger.Error("list admins failed", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "internal", "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(list),
		"admins": list,
	})
}

type createAdminRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (s *Server) handleCreateAdmin(w http.ResponseWriter, r *http.Request) {
	if s.adminStore == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "unavailable", "Admin store unavailable")
		return
	}

	var req createAdminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeJSONError(w, http.StatusBadRequest, "missing_fields", "Username and password are required")
		return
	}
	if len(req.Password) < 8 {
		writeJSONError(w, http.StatusBadRequest, "weak_password", "Password must be at least 8 characters")
		return
	}
	if s.fixtures.Exists(req.Username, req.Email) {
		writeJSONError(w, http.StatusConflict, "conflict", "Username already exists")
		return
	}

	admin, err := s.adminStore.Create(req.Username, req.Email, req.Password, req.Role)
	if err != nil {
		switch {
		case errors.Is(err, admins.ErrInvalidRole):
			writeJSONError(w, http.StatusBadRequest, "invalid_role", "Role must be admin or super_admin")
		case errors.Is(err, admins.ErrUsernameAlreadyUsed):
			writeJSONError(w, http.StatusConflict, "conflict", "Username already exists")
		default:
			s.logger.Error("create admin failed", zap.Error(err))
			writeJSONError(w, http.StatusInternalServerError, "internal", "Internal server error")
		}
		return
	}

	s.auditRecorder().Record(audit.Event{
		Timestamp:  time.Now().UTC(),
		Type:       audit.EventAdminCreated,
		Actor:      actorID(r),
		RemoteAddr: r.RemoteAddr,
		Summary:    "Admin account created: " + admin.Username,
		Detail:     map[string]string{"admin_id": admin.ID, "role": admin.Role},
	})

	writeJSON(w, http.StatusCreated, map[string]any{"admin": admin})
}

func (s *Server) handleDeleteAdmin(w http.ResponseWriter, r *http.Request) {
	if s.adminStore == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "unavailable", "Admin store unavailable")
		return
	}

	id := r.PathValue("id")
	if err := s.adminStore.Delete(id); err != nil {
		if errors.Is(err, admins.ErrAdminNotFound) {
			writeJSONError(w, http.StatusNotFound, "not_found", "Admin not found")
			return
		}
		s.logger.Error("delete admin failed", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "internal", "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Admin deleted"})
}

type setEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleSetAdminEnabled(w http.ResponseWriter, r *http.Request) {
	if s.adminStore == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "unavailable", "Admin store unavailable")
		return
	}

	id := r.PathValue("id")
	var req setEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	if err := s.adminStore.SetEnabled(id, req.Enabled); err != nil {
		if errors.Is(err, admins.ErrAdminNotFound) {
			writeJSONError(w, http.StatusNotFound, "not_found", "Admin not found")
			return
		}
		s.logger.Error("set admin enabled failed", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "internal", "Internal server error")
		return
	}

	if !req.Enabled {
		s.auditRecorder().Record(audit.Event{
			Timestamp:  time.Now().UTC(),
			Type:       audit.EventAdminDisabled,
			Actor:      actorID(r),
			RemoteAddr: r.RemoteAddr,
			Summary:    "Admin account disabled: " + id,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"enabled": req.Enabled})
}

type setPasswordRequest struct {
	Password string `json:"password"`
}

func (s *Server) handleSetAdminPassword(w http.ResponseWriter, r *http.Request) {
	if s.adminStore == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "unavailable", "Admin store unavailable")
		return
	}

	id := r.PathValue("id")
	var req setPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Password) < 8 {
		writeJSONError(w, http.StatusBadRequest, "weak_password", "Password must be at least 8 characters")
		return
	}

	if err := s.adminStore.UpdatePassword(id, req.Password); err != nil {
		if errors.Is(err, admins.ErrAdminNotFound) {
			writeJSONError(w, http.StatusNotFound, "not_found", "Admin not found")
			return
		}
		s.logger.Error("update admin password failed", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "internal", "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Password updated"})
}

func actorID(r *http.Request) string {
	if p := auth.PrincipalFromContext(r.Context()); p != nil {
		return p.ID
	}
	return ""
}
