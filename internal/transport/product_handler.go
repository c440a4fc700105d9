package transport

import (
	"net/http"
	"strconv"
	"time"

	"provchain/internal/domain"
	"provchain/internal/middleware"
	"provchain/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// CreateProductRequest represents the product creation payload
type CreateProductRequest struct {
	Name             string `json:"name" validate:"required"`
	ManufacturerName string `json:"manufacturer_name" validate:"required"`
	InitialLocation  string `json:"initial_location"`
}

// TransferProductRequest represents the custody transfer payload
type TransferProductRequest struct {
	NewOwner    string `json:"new_owner" validate:"required"`
	NewLocation string `json:"new_location" validate:"required"`
}

// CheckpointResponse is one rendered entry of a product's audit log
type CheckpointResponse struct {
	Seq        int       `json:"seq"`
	Event      string    `json:"event"`
	Location   string    `json:"location,omitempty"`
	Actor      string    `json:"actor,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
	Summary    string    `json:"summary"`
}

// ProductResponse represents the full product record
type ProductResponse struct {
	ID               int64                `json:"id"`
	Name             string               `json:"name"`
	ManufacturerName string               `json:"manufacturer_name"`
	ManufacturedAt   time.Time            `json:"manufactured_at"`
	CurrentLocation  string               `json:"current_location"`
	CurrentOwner     string               `json:"current_owner"`
	Verified         bool                 `json:"verified"`
	Checkpoints      []CheckpointResponse `json:"checkpoints"`
}

// CountResponse represents the registry size
type CountResponse struct {
	Total int64 `json:"total"`
}

// ProductHandler handles HTTP requests for registry operations
type ProductHandler struct {
	registry service.RegistryService
	logger   *zap.Logger
}

// NewProductHandler creates a new ProductHandler
func NewProductHandler(registry service.RegistryService, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		registry: registry,
		logger:   logger,
	}
}

// RegisterRoutes registers all product routes
func (h *ProductHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/products", func(r chi.Router) {
		// Public reads
		r.Get("/count", h.Count)
		r.Get("/{id}", h.Get)

		// Mutations require an authenticated caller
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Post("/", h.Create)
			r.Post("/{id}/transfer", h.Transfer)
			r.Post("/{id}/verify", h.Verify)
		})
	})
}

// Create handles product creation
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.GetIdentity(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "missing caller identity")
		return
	}

	var req CreateProductRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Product creation validation failed", zap.Error(err))

		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}

		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	product, err := h.registry.CreateProduct(r.Context(), caller, req.Name, req.ManufacturerName, req.InitialLocation)
	if err != nil {
		h.logger.Debug("Product creation rejected", zap.Error(err))
		middleware.RespondWithDomainError(w, err)
		return
	}

	h.logger.Info("Product created",
		zap.Int64("product_id", product.ID),
		zap.String("owner", product.CurrentOwner.String()),
	)
	middleware.RespondWithJSON(w, http.StatusCreated, toProductResponse(product))
}

// Transfer handles custody transfers
func (h *ProductHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.GetIdentity(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "missing caller identity")
		return
	}

	id, err := parseProductID(r)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	var req TransferProductRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Transfer validation failed", zap.Error(err))

		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}

		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.registry.TransferProduct(r.Context(), caller, id, domain.Identity(req.NewOwner), req.NewLocation); err != nil {
		h.logger.Debug("Transfer rejected", zap.Int64("product_id", id), zap.Error(err))
		middleware.RespondWithDomainError(w, err)
		return
	}

	h.logger.Info("Product transferred",
		zap.Int64("product_id", id),
		zap.String("new_owner", req.NewOwner),
	)
	w.WriteHeader(http.StatusNoContent)
}

// Verify handles product verification
func (h *ProductHandler) Verify(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.GetIdentity(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "missing caller identity")
		return
	}

	id, err := parseProductID(r)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	if err := h.registry.VerifyProduct(r.Context(), caller, id); err != nil {
		h.logger.Debug("Verification rejected", zap.Int64("product_id", id), zap.Error(err))
		middleware.RespondWithDomainError(w, err)
		return
	}

	h.logger.Info("Product verified",
		zap.Int64("product_id", id),
		zap.String("verifier", caller.String()),
	)
	w.WriteHeader(http.StatusNoContent)
}

// Get returns the full product record including its audit log
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseProductID(r)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	product, err := h.registry.GetProduct(r.Context(), id)
	if err != nil {
		middleware.RespondWithDomainError(w, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, toProductResponse(product))
}

// Count returns the total number of products ever created
func (h *ProductHandler) Count(w http.ResponseWriter, r *http.Request) {
	total, err := h.registry.GetTotalProducts(r.Context())
	if err != nil {
		middleware.RespondWithDomainError(w, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, CountResponse{Total: total})
}

func parseProductID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func toProductResponse(product *domain.Product) ProductResponse {
	checkpoints := make([]CheckpointResponse, 0, len(product.Checkpoints))
	for _, cp := range product.Checkpoints {
		checkpoints = append(checkpoints, CheckpointResponse{
			Seq:        cp.Seq,
			Event:      string(cp.Event),
			Location:   cp.Location,
			Actor:      cp.Actor.String(),
			RecordedAt: cp.RecordedAt,
			Summary:    cp.Render(),
		})
	}

	return ProductResponse{
		ID:               product.ID,
		Name:             product.Name,
		ManufacturerName: product.ManufacturerName,
		ManufacturedAt:   product.ManufacturedAt,
		CurrentLocation:  product.CurrentLocation,
		CurrentOwner:     product.CurrentOwner.String(),
		Verified:         product.Verified,
		Checkpoints:      checkpoints,
	}
}
