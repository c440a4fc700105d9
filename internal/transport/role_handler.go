package transport

import (
	"net/http"

	"provchain/internal/domain"
	"provchain/internal/middleware"
	"provchain/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// GrantRoleRequest represents the role grant payload
type GrantRoleRequest struct {
	Identity string `json:"identity" validate:"required"`
}

// RolesResponse reports an identity's role membership
type RolesResponse struct {
	Identity      string `json:"identity"`
	Administrator bool   `json:"administrator"`
	Manufacturer  bool   `json:"manufacturer"`
	Verifier      bool   `json:"verifier"`
}

// RoleHandler handles HTTP requests for the administrative surface
type RoleHandler struct {
	access service.AccessService
	logger *zap.Logger
}

// NewRoleHandler creates a new RoleHandler
func NewRoleHandler(access service.AccessService, logger *zap.Logger) *RoleHandler {
	return &RoleHandler{
		access: access,
		logger: logger,
	}
}

// RegisterRoutes registers all role routes
func (h *RoleHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/roles", func(r chi.Router) {
		// Public role predicates
		r.Get("/{identity}", h.GetRoles)

		// Set mutations; the service enforces administrator authority
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Post("/manufacturers", h.grant(domain.RoleManufacturer))
			r.Delete("/manufacturers/{identity}", h.revoke(domain.RoleManufacturer))
			r.Post("/verifiers", h.grant(domain.RoleVerifier))
			r.Delete("/verifiers/{identity}", h.revoke(domain.RoleVerifier))
		})
	})
}

// GetRoles reports the membership flags for an identity
func (h *RoleHandler) GetRoles(w http.ResponseWriter, r *http.Request) {
	identity := domain.Identity(chi.URLParam(r, "identity"))
	if identity.IsZero() {
		middleware.RespondWithError(w, http.StatusBadRequest, "identity is required")
		return
	}

	admin, err := h.access.IsAdministrator(r.Context(), identity)
	if err != nil {
		middleware.RespondWithDomainError(w, err)
		return
	}
	manufacturer, err := h.access.IsManufacturer(r.Context(), identity)
	if err != nil {
		middleware.RespondWithDomainError(w, err)
		return
	}
	verifier, err := h.access.IsVerifier(r.Context(), identity)
	if err != nil {
		middleware.RespondWithDomainError(w, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, RolesResponse{
		Identity:      identity.String(),
		Administrator: admin,
		Manufacturer:  manufacturer,
		Verifier:      verifier,
	})
}

func (h *RoleHandler) grant(role domain.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := middleware.GetIdentity(r.Context())
		if !ok {
			middleware.RespondWithError(w, http.StatusUnauthorized, "missing caller identity")
			return
		}

		var req GrantRoleRequest
		if err := middleware.DecodeAndValidate(r, &req); err != nil {
			h.logger.Debug("Grant validation failed", zap.Error(err))

			if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
				middleware.RespondWithValidationErrors(w, validationErrors)
				return
			}

			middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		if err := h.dispatchGrant(r, role, caller, domain.Identity(req.Identity)); err != nil {
			h.logger.Debug("Grant rejected", zap.String("role", string(role)), zap.Error(err))
			middleware.RespondWithDomainError(w, err)
			return
		}

		h.logger.Info("Role granted",
			zap.String("role", string(role)),
			zap.String("identity", req.Identity),
			zap.String("granted_by", caller.String()),
		)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *RoleHandler) revoke(role domain.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := middleware.GetIdentity(r.Context())
		if !ok {
			middleware.RespondWithError(w, http.StatusUnauthorized, "missing caller identity")
			return
		}

		identity := domain.Identity(chi.URLParam(r, "identity"))
		if err := h.dispatchRevoke(r, role, caller, identity); err != nil {
			h.logger.Debug("Revoke rejected", zap.String("role", string(role)), zap.Error(err))
			middleware.RespondWithDomainError(w, err)
			return
		}

		h.logger.Info("Role revoked",
			zap.String("role", string(role)),
			zap.String("identity", identity.String()),
			zap.String("revoked_by", caller.String()),
		)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *RoleHandler) dispatchGrant(r *http.Request, role domain.Role, caller, identity domain.Identity) error {
	if role == domain.RoleVerifier {
		return h.access.GrantVerifier(r.Context(), caller, identity)
	}
	return h.access.GrantManufacturer(r.Context(), caller, identity)
}

func (h *RoleHandler) dispatchRevoke(r *http.Request, role domain.Role, caller, identity domain.Identity) error {
	if role == domain.RoleVerifier {
		return h.access.RevokeVerifier(r.Context(), caller, identity)
	}
	return h.access.RevokeManufacturer(r.Context(), caller, identity)
}
