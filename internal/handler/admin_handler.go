package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"chatbot-auth/internal/service"
	"chatbot-auth/pkg/apierror"
)

type AdminHandler struct {
	Responder
	service *service.AuthService
}

func NewAdminHandler(service *service.AuthService, responder Responder) *AdminHandler {
	return &AdminHandler{Responder: responder, service: service}
}

// RevokeSessions force-logs-out every session of the identity in the path.
func (h *AdminHandler) RevokeSessions(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "id"))
	if userID == "" {
		h.writeError(w, r, apierror.BadRequest("user id is required", "id"))
		return
	}

	removed, err := h.service.RevokeIdentity(requestContext(r), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"user_id": userID, "revoked": removed})
}
