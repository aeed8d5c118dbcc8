package barcode

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/platform/httpx"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Handler exposes unit endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers barcode routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/barcodes/scan/{code}", h.scan)
	r.Put("/barcodes/{id}/location", h.updateLocation)
	r.Post("/barcodes/{id}/sold", h.markSold)
	r.Post("/barcodes/{id}/returned", h.markReturned)
	r.Post("/barcodes/{id}/defective", h.markDefective)
	r.Post("/barcodes/{id}/primary", h.setPrimary)
	r.Post("/barcodes/{id}/shipment", h.markInShipment)
	r.Get("/barcodes/{id}/shipment", h.shipmentStatus)
	r.Post("/defective-products/{id}/sell", h.sellDefective)
}

type locationRequest struct {
	StoreID      *int64           `json:"store_id" validate:"omitempty,gt=0"`
	Status       Status           `json:"status" validate:"required"`
	Metadata     LocationMetadata `json:"metadata"`
	SkipMovement bool             `json:"skip_movement"`
	Notes        string           `json:"notes" validate:"max=500"`
}

type saleRequest struct {
	OrderID    int64 `json:"order_id" validate:"required,gt=0"`
	CustomerID int64 `json:"customer_id" validate:"omitempty,gt=0"`
}

type returnRequest struct {
	ReturnID int64  `json:"return_id" validate:"required,gt=0"`
	Reason   string `json:"reason" validate:"max=500"`
	StoreID  *int64 `json:"store_id" validate:"omitempty,gt=0"`
}

type defectRequest struct {
	DefectType   string          `json:"defect_type" validate:"required,max=64"`
	Description  string          `json:"description" validate:"max=1000"`
	MinimumPrice decimal.Decimal `json:"minimum_price"`
}

type sellDefectiveRequest struct {
	Price   decimal.Decimal `json:"price"`
	OrderID int64           `json:"order_id" validate:"required,gt=0"`
}

type shipmentRequest struct {
	ShipmentID     int64  `json:"shipment_id" validate:"required,gt=0"`
	TrackingNumber string `json:"tracking_number" validate:"required,max=64"`
}

func (h *Handler) scan(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Scan(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.logger.Error("scan barcode", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

// actorAndID resolves the acting employee and the {id} path parameter.
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

func (h *Handler) updateLocation(w http.ResponseWriter, r *http.Request) {
	actor, id, err := actorAndID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req locationRequest
	if err := httpx.Bind(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	unit, err := h.service.UpdateLocation(r.Context(), LocationInput{
		BarcodeID:    id,
		StoreID:      req.StoreID,
		Status:       req.Status,
		Metadata:     req.Metadata,
		SkipMovement: req.SkipMovement,
		Notes:        req.Notes,
		Actor:        actor,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, unit)
}

func (h *Handler) markSold(w http.ResponseWriter, r *http.Request) {
	actor, id, err := actorAndID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req saleRequest
	if err := httpx.Bind(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	unit, err := h.service.MarkSold(r.Context(), SaleInput{BarcodeID: id, OrderID: req.OrderID, CustomerID: req.CustomerID, Actor: actor})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, unit)
}

func (h *Handler) markReturned(w http.ResponseWriter, r *http.Request) {
	actor, id, err := actorAndID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req returnRequest
	if err := httpx.Bind(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	unit, err := h.service.MarkReturned(r.Context(), ReturnInput{
		BarcodeID: id, ReturnID: req.ReturnID, Reason: req.Reason, StoreID: req.StoreID, Actor: actor,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, unit)
}

func (h *Handler) markDefective(w http.ResponseWriter, r *http.Request) {
	actor, id, err := actorAndID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req defectRequest
	if err := httpx.Bind(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	defect, err := h.service.MarkAsDefective(r.Context(), DefectInput{
		BarcodeID: id, DefectType: req.DefectType, Description: req.Description, MinimumPrice: req.MinimumPrice, Actor: actor,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, defect)
}

func (h *Handler) sellDefective(w http.ResponseWriter, r *http.Request) {
	actor, id, err := actorAndID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req sellDefectiveRequest
	if err := httpx.Bind(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	defect, err := h.service.SellDefective(r.Context(), SellDefectiveInput{DefectID: id, Price: req.Price, OrderID: req.OrderID, Actor: actor})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, defect)
}

func (h *Handler) setPrimary(w http.ResponseWriter, r *http.Request) {
	_, id, err := actorAndID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	unit, err := h.service.SetPrimary(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, unit)
}

func (h *Handler) markInShipment(w http.ResponseWriter, r *http.Request) {
	actor, id, err := actorAndID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req shipmentRequest
	if err := httpx.Bind(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	unit, err := h.service.MarkInShipment(r.Context(), id, req.ShipmentID, req.TrackingNumber, actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, unit)
}

func (h *Handler) shipmentStatus(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	info, err := h.service.ShipmentStatus(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, info)
}
