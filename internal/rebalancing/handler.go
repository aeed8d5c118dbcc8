package rebalancing

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/platform/httpx"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Handler exposes rebalancing endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers rebalancing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/rebalancing", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/suggestions", h.suggestions)
		r.Get("/{id}", h.show)
		r.Post("/{id}/approve", h.approve)
		r.Post("/{id}/transit", h.startTransit)
		r.Post("/{id}/complete", h.complete)
		r.Post("/{id}/cancel", h.cancel)
	})
}

type createRequest struct {
	SourceBatchID      int64    `json:"source_batch_id" validate:"required,gt=0"`
	DestinationStoreID int64    `json:"destination_store_id" validate:"required,gt=0"`
	Quantity           int      `json:"quantity" validate:"required,gt=0"`
	Priority           Priority `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
	Reason             string   `json:"reason" validate:"max=500"`
}

type transitRequest struct {
	DispatchID *int64 `json:"dispatch_id" validate:"omitempty,gt=0"`
}

type completeRequest struct {
	ActualCost *decimal.Decimal `json:"actual_cost"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	productID, err := httpx.QueryInt64(r, "product_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	storeID, err := httpx.QueryInt64(r, "store_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.List(r.Context(), ListFilter{
		Status:    Status(r.URL.Query().Get("status")),
		ProductID: productID,
		StoreID:   storeID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"requests": rows})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	req, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, err := shared.ActorFromRequest(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var body createRequest
	if err := httpx.Bind(r, h.validate, &body); err != nil {
		httpx.RespondError(w, err)
		return
	}
	req, err := h.service.Create(r.Context(), CreateInput{
		SourceBatchID:      body.SourceBatchID,
		DestinationStoreID: body.DestinationStoreID,
		Quantity:           body.Quantity,
		Priority:           body.Priority,
		Reason:             body.Reason,
		Actor:              actor,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, req)
}

func (h *Handler) suggestions(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.Suggest(r.Context())
	if err != nil {
		h.logger.Error("rebalancing suggestions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"suggestions": rows})
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	actor, id, err := actorAndID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	req, err := h.service.Approve(r.Context(), id, actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

func (h *Handler) startTransit(w http.ResponseWriter, r *http.Request) {
	_, id, err := actorAndID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var body transitRequest
	if err := httpx.Bind(r, h.validate, &body); err != nil {
		httpx.RespondError(w, err)
		return
	}
	req, err := h.service.StartTransit(r.Context(), id, body.DispatchID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	actor, id, err := actorAndID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var body completeRequest
	if err := httpx.Bind(r, h.validate, &body); err != nil {
		httpx.RespondError(w, err)
		return
	}
	req, err := h.service.Complete(r.Context(), id, actor, body.ActualCost)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	actor, id, err := actorAndID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var body cancelRequest
	if err := httpx.Bind(r, h.validate, &body); err != nil {
		httpx.RespondError(w, err)
		return
	}
	req, err := h.service.Cancel(r.Context(), id, actor, body.Reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

func actorAndID(r *http.Request) (int64, int64, error) {
	actor, err := shared.ActorFromRequest(r)
	if err != nil {
		return 0, 0, err
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		return 0, 0, err
	}
	return actor, id, nil
}
