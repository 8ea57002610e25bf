package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ms-service-orders/internal/logger"
	"ms-service-orders/internal/models"
	"ms-service-orders/internal/order"
	"ms-service-orders/internal/report"
	"ms-service-orders/internal/utils"
)

const maxBodyBytes = 10 << 20

type Handler struct {
	OrderService *order.OrderService
	Logger       *logger.Logger
}

func NewHandler(svc *order.OrderService, log *logger.Logger) *Handler {
	return &Handler{OrderService: svc, Logger: log}
}

// Routes mounts every endpoint under /api.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.CreateOrders)
			r.Get("/", h.ListOrders)
			r.Get("/quotes", h.QuoteQueue)
			r.Get("/stats", h.StatusCounts)
			r.Get("/{orderId}", h.GetOrder)
			r.Put("/{orderId}", h.UpdateDetails)
			r.Put("/{orderId}/status", h.UpdateStatus)
			r.Post("/{orderId}/archive", h.ArchiveOrder)
			r.Delete("/{orderId}", h.DeleteOrder)
		})
		r.Get("/order-ids/stats", h.AllocatorStats)
		r.Get("/export", h.Export)
		r.Post("/import", h.Import)
	})
	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ok", nil))
}

func (h *Handler) CreateOrders(w http.ResponseWriter, r *http.Request) {
	var form models.IntakeForm
	if !h.decode(w, r, &form) {
		return
	}

	orders, err := h.OrderService.CreateOrders(r.Context(), form)
	if err != nil {
		h.writeError(w, err, "Could not create service orders", orders)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse(fmt.Sprintf("%d service order(s) created", len(orders)), orders))
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	partition := models.PartitionActive
	switch q.Get("partition") {
	case "", string(models.PartitionActive):
	case string(models.PartitionArchived):
		partition = models.PartitionArchived
	default:
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid partition", "partition must be active or archived"))
		return
	}

	sortBy := order.SortOrder(q.Get("sort"))
	switch sortBy {
	case "", order.SortNewest, order.SortOldest, order.SortCustomer, order.SortArchived:
	default:
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid sort", "sort must be newest, oldest, customer or archived"))
		return
	}

	orders := h.OrderService.List(partition, order.ListOptions{
		Status: models.Status(q.Get("status")),
		Search: q.Get("q"),
		Sort:   sortBy,
	})
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse(fmt.Sprintf("%d service order(s)", len(orders)), orders))
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.OrderService.Get(chi.URLParam(r, "orderId"))
	if err != nil {
		h.writeError(w, err, "Could not get service order", nil)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Service order found", o))
}

func (h *Handler) UpdateDetails(w http.ResponseWriter, r *http.Request) {
	var update models.DetailsUpdate
	if !h.decode(w, r, &update) {
		return
	}

	o, err := h.OrderService.UpdateDetails(r.Context(), chi.URLParam(r, "orderId"), update)
	if err != nil {
		h.writeError(w, err, "Could not update service order", o)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Service order updated", o))
}

type statusRequest struct {
	Status models.Status `json:"status"`
	Notes  string        `json:"notes"`
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !h.decode(w, r, &req) {
		return
	}

	o, err := h.OrderService.UpdateStatus(r.Context(), chi.URLParam(r, "orderId"), req.Status, req.Notes)
	if err != nil {
		h.writeError(w, err, "Could not change status", o)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Status updated", o))
}

func (h *Handler) ArchiveOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.OrderService.Archive(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		h.writeError(w, err, "Could not archive service order", o)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Service order archived", o))
}

func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	if err := h.OrderService.DeleteArchived(r.Context(), orderID); err != nil {
		h.writeError(w, err, "Could not delete service order", nil)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Service order deleted", map[string]string{"id": orderID}))
}

func (h *Handler) QuoteQueue(w http.ResponseWriter, r *http.Request) {
	queue := h.OrderService.QuoteQueue()
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse(fmt.Sprintf("%d order(s) awaiting quotes", len(queue)), queue))
}

func (h *Handler) StatusCounts(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Status counts", h.OrderService.StatusCounts()))
}

func (h *Handler) AllocatorStats(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Order id pool statistics", h.OrderService.AllocatorStats()))
}

// Export answers with the backup document, or with an xlsx workbook when format=xlsx.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	includeArchived, _ := strconv.ParseBool(q.Get("includeArchived"))
	doc := h.OrderService.Export(includeArchived, q.Get("exportedBy"))
	stamp := doc.ExportDate.Format("2006-01-02")

	switch q.Get("format") {
	case "", "json":
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="service-orders-%s.json"`, stamp))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(doc)
	case "xlsx":
		var buf bytes.Buffer
		if err := report.WriteWorkbook(&buf, doc); err != nil {
			h.Logger.Error("API", fmt.Sprintf("Failed to render workbook: %v", err))
			utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Could not export", err.Error()))
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="service-orders-%s.xlsx"`, stamp))
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
	default:
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid format", "format must be json or xlsx"))
	}
}

func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	var doc models.ExportDocument
	if !h.decode(w, r, &doc) {
		return
	}

	result, err := h.OrderService.Import(r.Context(), doc)
	if err != nil {
		h.writeError(w, err, "Could not import service orders", result)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse(
		fmt.Sprintf("Imported %d new and %d updated service order(s)", result.Added, result.Updated), result))
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return false
	}
	return true
}

// writeError maps the lifecycle error kinds to status codes. A persistence failure still carries
// data, since the change was applied in memory.
func (h *Handler) writeError(w http.ResponseWriter, err error, message string, data interface{}) {
	var (
		notFound    *order.NotFoundError
		invalid     *order.InvalidStateError
		validation  *order.ValidationError
		persistence *order.PersistenceError
	)

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &notFound):
		status = http.StatusNotFound
	case errors.As(err, &invalid):
		status = http.StatusConflict
	case errors.As(err, &validation):
		status = http.StatusBadRequest
	case errors.As(err, &persistence):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		h.Logger.Error("API", fmt.Sprintf("%s: %v", message, err))
	}

	resp := utils.ErrorResponse(message, err.Error())
	if persistence != nil {
		resp.Data = data
	}
	utils.WriteJSON(w, status, resp)
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.Logger.LogAPI(r.Method, r.URL.Path, strconv.Itoa(ww.Status()), time.Since(start).String())
	})
}
