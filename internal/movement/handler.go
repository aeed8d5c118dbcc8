package movement

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/stockledger/internal/platform/httpx"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Handler exposes movement queries over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers movement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/movements", h.list)
	r.Get("/barcodes/{id}/location", h.currentLocation)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter, page, err := parseFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list movements", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"movements": rows,
		"page":      page.Page,
		"per_page":  page.PerPage,
	})
}

func (h *Handler) currentLocation(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	storeID, err := h.service.CurrentLocation(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int64{"barcode_id": id, "store_id": storeID})
}

func parseFilter(r *http.Request) (Filter, shared.Pagination, error) {
	var (
		f   Filter
		err error
	)
	if f.BatchID, err = httpx.QueryInt64(r, "batch_id"); err != nil {
		return f, shared.Pagination{}, err
	}
	if f.BarcodeID, err = httpx.QueryInt64(r, "barcode_id"); err != nil {
		return f, shared.Pagination{}, err
	}
	if f.StoreID, err = httpx.QueryInt64(r, "store_id"); err != nil {
		return f, shared.Pagination{}, err
	}
	q := r.URL.Query()
	f.Type = Type(q.Get("type"))
	if f.From, err = parseTime(q.Get("from")); err != nil {
		return f, shared.Pagination{}, err
	}
	if f.To, err = parseTime(q.Get("to")); err != nil {
		return f, shared.Pagination{}, err
	}
	pageNum, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	page := shared.NewPagination(pageNum, perPage, 0)
	f.Limit = page.PerPage
	f.Offset = page.Offset()
	return f, page, nil
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", raw, shared.ErrValidation)
	}
	return t, nil
}
