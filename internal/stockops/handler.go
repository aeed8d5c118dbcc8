package stockops

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/platform/httpx"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Handler exposes stock intake endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers stock operation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/receipts", h.receive)
	r.Route("/batches/{id}", func(r chi.Router) {
		r.Post("/adjust", h.adjust)
		r.Put("/pricing", h.reprice)
	})
}

type receiveRequest struct {
	ProductID       int64           `json:"product_id" validate:"required,gt=0"`
	StoreID         int64           `json:"store_id" validate:"required,gt=0"`
	Quantity        int             `json:"quantity" validate:"required,gt=0,lte=10000"`
	CostPrice       decimal.Decimal `json:"cost_price"`
	SellPrice       decimal.Decimal `json:"sell_price"`
	TaxPercentage   decimal.Decimal `json:"tax_percentage"`
	ManufacturedAt  *time.Time      `json:"manufactured_at"`
	ExpiresAt       *time.Time      `json:"expires_at"`
	PurchaseOrderID int64           `json:"purchase_order_id" validate:"gte=0"`
}

type adjustRequest struct {
	Delta  int    `json:"delta" validate:"required"`
	Clamp  bool   `json:"clamp"`
	Reason string `json:"reason" validate:"required,max=500"`
}

type repriceRequest struct {
	CostPrice     *decimal.Decimal `json:"cost_price"`
	SellPrice     *decimal.Decimal `json:"sell_price"`
	TaxPercentage *decimal.Decimal `json:"tax_percentage"`
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	actor, err := shared.ActorFromRequest(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var body receiveRequest
	if err := httpx.Bind(r, h.validate, &body); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.Receive(r.Context(), ReceiveInput{
		ProductID:       body.ProductID,
		StoreID:         body.StoreID,
		Quantity:        body.Quantity,
		CostPrice:       body.CostPrice,
		SellPrice:       body.SellPrice,
		TaxPercentage:   body.TaxPercentage,
		ManufacturedAt:  body.ManufacturedAt,
		ExpiresAt:       body.ExpiresAt,
		PurchaseOrderID: body.PurchaseOrderID,
		Actor:           actor,
	})
	if err != nil {
		h.logger.Error("receive stock", slog.Int64("product_id", body.ProductID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	actor, err := shared.ActorFromRequest(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var body adjustRequest
	if err := httpx.Bind(r, h.validate, &body); err != nil {
		httpx.RespondError(w, err)
		return
	}
	b, err := h.service.Adjust(r.Context(), AdjustInput{BatchID: id, Delta: body.Delta, Clamp: body.Clamp, Reason: body.Reason, Actor: actor})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

func (h *Handler) reprice(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var body repriceRequest
	if err := httpx.Bind(r, h.validate, &body); err != nil {
		httpx.RespondError(w, err)
		return
	}
	b, err := h.service.Reprice(r.Context(), RepriceInput{
		BatchID:       id,
		CostPrice:     body.CostPrice,
		SellPrice:     body.SellPrice,
		TaxPercentage: body.TaxPercentage,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}
