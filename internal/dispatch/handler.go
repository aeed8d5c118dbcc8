package dispatch

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/stockledger/internal/platform/httpx"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Handler exposes dispatch endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers dispatch routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/dispatches", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.show)
		r.Post("/{id}/items", h.addItem)
		r.Delete("/{id}/items/{itemID}", h.removeItem)
		r.Post("/{id}/approve", h.approve)
		r.Post("/{id}/dispatch", h.dispatch)
		r.Post("/{id}/deliver", h.deliver)
		r.Post("/{id}/cancel", h.cancel)
	})
}

type createRequest struct {
	SourceStoreID        int64      `json:"source_store_id" validate:"required,gt=0"`
	DestinationStoreID   int64      `json:"destination_store_id" validate:"required,gt=0,nefield=SourceStoreID"`
	Carrier              string     `json:"carrier" validate:"max=100"`
	TrackingNumber       string     `json:"tracking_number" validate:"max=100"`
	ExpectedDeliveryDate *time.Time `json:"expected_delivery_date"`
	Notes                string     `json:"notes" validate:"max=1000"`
}

type addItemRequest struct {
	BatchID  int64 `json:"batch_id" validate:"required,gt=0"`
	Quantity int   `json:"quantity" validate:"required,gt=0"`
}

type receiptRequest struct {
	ItemID   int64  `json:"item_id" validate:"required,gt=0"`
	Received int    `json:"received" validate:"gte=0"`
	Damaged  int    `json:"damaged" validate:"gte=0"`
	Missing  int    `json:"missing" validate:"gte=0"`
	Notes    string `json:"notes" validate:"max=500"`
}

type deliverRequest struct {
	Receipts []receiptRequest `json:"receipts" validate:"omitempty,dive"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	storeID, err := httpx.QueryInt64(r, "store_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q := r.URL.Query()
	pageNum, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	page := shared.NewPagination(pageNum, perPage, 0)
	rows, err := h.service.List(r.Context(), ListFilter{
		Status:  Status(q.Get("status")),
		StoreID: storeID,
		Limit:   page.PerPage,
		Offset:  page.Offset(),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"dispatches": rows, "page": page.Page, "per_page": page.PerPage})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	d, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
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
	d, err := h.service.Create(r.Context(), CreateInput{
		SourceStoreID:        body.SourceStoreID,
		DestinationStoreID:   body.DestinationStoreID,
		Carrier:              body.Carrier,
		TrackingNumber:       body.TrackingNumber,
		ExpectedDeliveryDate: body.ExpectedDeliveryDate,
		Notes:                body.Notes,
		Actor:                actor,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, d)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var body addItemRequest
	if err := httpx.Bind(r, h.validate, &body); err != nil {
		httpx.RespondError(w, err)
		return
	}
	d, err := h.service.AddItem(r.Context(), id, body.BatchID, body.Quantity)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	itemID, err := httpx.IDParam(r, "itemID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	d, err := h.service.RemoveItem(r.Context(), id, itemID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	actor, id, err := actorAndID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	d, err := h.service.Approve(r.Context(), id, actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	d, err := h.service.Dispatch(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) deliver(w http.ResponseWriter, r *http.Request) {
	actor, id, err := actorAndID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var body deliverRequest
	if err := httpx.Bind(r, h.validate, &body); err != nil {
		httpx.RespondError(w, err)
		return
	}
	receipts := make(map[int64]Receipt, len(body.Receipts))
	for _, rc := range body.Receipts {
		receipts[rc.ItemID] = Receipt{Received: rc.Received, Damaged: rc.Damaged, Missing: rc.Missing, Notes: rc.Notes}
	}
	d, err := h.service.Deliver(r.Context(), DeliverInput{DispatchID: id, Receipts: receipts, Actor: actor})
	if err != nil {
		h.logger.Error("deliver dispatch", slog.Int64("dispatch_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
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
	d, err := h.service.Cancel(r.Context(), id, actor, body.Reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
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
