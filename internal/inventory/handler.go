// internal/inventory/handler.go
package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"golang.org/x/time/rate"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Handler struct {
	service        Service
	logger         *slog.Logger
	limiter        *rate.Limiter
	adminToken     *AdminToken
	allowReset     bool
	requestTimeout time.Duration
}

type HandlerOption func(*Handler)

func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithAdminRateLimit caps the request rate of the /admin routes. A zero
// limit disables limiting.
func WithAdminRateLimit(limit float64, burst int) HandlerOption {
	return func(h *Handler) {
		if limit <= 0 {
			h.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(limit), burst)
	}
}

// WithAdminToken requires a bearer token on the /admin routes.
func WithAdminToken(token *AdminToken) HandlerOption {
	return func(h *Handler) {
		h.adminToken = token
	}
}

// WithSchemaReset exposes POST /startup.
func WithSchemaReset(enabled bool) HandlerOption {
	return func(h *Handler) {
		h.allowReset = enabled
	}
}

func WithRequestTimeout(d time.Duration) HandlerOption {
	return func(h *Handler) {
		h.requestTimeout = d
	}
}

func NewHandler(service Service, opts ...HandlerOption) *Handler {
	h := &Handler{service: service, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes builds the HTTP router for the inventory API.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(h.requestID, h.logRequests, middleware.Recoverer)
	if h.requestTimeout > 0 {
		r.Use(middleware.Timeout(h.requestTimeout))
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/", h.handleHealth)
	r.Post("/startup", h.handleStartup)

	r.Route("/books", func(r chi.Router) {
		r.Get("/", h.handleListBooks)
		r.Post("/", h.handleCreateBook)
		r.Get("/{id}", h.handleGetBook)
		r.Put("/{id}", h.handleUpdateBook)
		r.Delete("/{id}", h.handleDeleteBook)
	})

	r.Route("/branches", func(r chi.Router) {
		r.Get("/", h.handleListBranches)
		r.Post("/", h.handleCreateBranch)
		r.Get("/{id}", h.handleGetBranch)
		r.Put("/{id}", h.handleUpdateBranch)
		r.Delete("/{id}", h.handleDeleteBranch)
	})

	r.Route("/faculties", func(r chi.Router) {
		r.Get("/", h.handleListFaculties)
		r.Post("/", h.handleCreateFaculty)
		r.Get("/{id}", h.handleGetFaculty)
		r.Put("/{id}", h.handleUpdateFaculty)
		r.Delete("/{id}", h.handleDeleteFaculty)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(h.rateLimitAdmin, h.requireAdmin)
		r.Put("/stock", h.handleUpsertStock)
		r.Get("/stock", h.handleListStock)
		r.Post("/book-faculty", h.handleLinkBookFaculty)
		r.Delete("/book-faculty", h.handleUnlinkBookFaculty)
		r.Get("/book-faculty", h.handleListBookFaculties)
	})

	r.Route("/analytics/branches/{branchID}/books/{bookID}", func(r chi.Router) {
		r.Get("/quantity", h.handleQuantity)
		r.Get("/faculties", h.handleFacultyUsage)
	})

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeMessage(w, http.StatusOK, "ok")
}

func (h *Handler) handleStartup(w http.ResponseWriter, r *http.Request) {
	if !h.allowReset {
		writeDetail(w, http.StatusNotFound, "not found")
		return
	}
	if err := h.service.ResetSchema(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "success")
}

// Books

func (h *Handler) handleListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.service.ListBooks(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

func (h *Handler) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "book id")
	if !ok {
		return
	}
	book, err := h.service.GetBook(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (h *Handler) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	var in BookInput
	if !decodeBody(w, r, &in) {
		return
	}
	book, err := h.service.CreateBook(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

func (h *Handler) handleUpdateBook(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "book id")
	if !ok {
		return
	}
	var patch BookPatch
	if !decodeBody(w, r, &patch) {
		return
	}
	book, err := h.service.UpdateBook(r.Context(), id, patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (h *Handler) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "book id")
	if !ok {
		return
	}
	if err := h.service.DeleteBook(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "deleted")
}

// Branches

func (h *Handler) handleListBranches(w http.ResponseWriter, r *http.Request) {
	branches, err := h.service.ListBranches(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, branches)
}

func (h *Handler) handleGetBranch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "branch id")
	if !ok {
		return
	}
	branch, err := h.service.GetBranch(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, branch)
}

func (h *Handler) handleCreateBranch(w http.ResponseWriter, r *http.Request) {
	var in BranchInput
	if !decodeBody(w, r, &in) {
		return
	}
	branch, err := h.service.CreateBranch(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, branch)
}

func (h *Handler) handleUpdateBranch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "branch id")
	if !ok {
		return
	}
	var patch BranchPatch
	if !decodeBody(w, r, &patch) {
		return
	}
	branch, err := h.service.UpdateBranch(r.Context(), id, patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, branch)
}

func (h *Handler) handleDeleteBranch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "branch id")
	if !ok {
		return
	}
	if err := h.service.DeleteBranch(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "deleted")
}

// Faculties

func (h *Handler) handleListFaculties(w http.ResponseWriter, r *http.Request) {
	faculties, err := h.service.ListFaculties(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, faculties)
}

func (h *Handler) handleGetFaculty(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "faculty id")
	if !ok {
		return
	}
	faculty, err := h.service.GetFaculty(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, faculty)
}

func (h *Handler) handleCreateFaculty(w http.ResponseWriter, r *http.Request) {
	var in FacultyInput
	if !decodeBody(w, r, &in) {
		return
	}
	faculty, err := h.service.CreateFaculty(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, faculty)
}

func (h *Handler) handleUpdateFaculty(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "faculty id")
	if !ok {
		return
	}
	var patch FacultyPatch
	if !decodeBody(w, r, &patch) {
		return
	}
	faculty, err := h.service.UpdateFaculty(r.Context(), id, patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, faculty)
}

func (h *Handler) handleDeleteFaculty(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "faculty id")
	if !ok {
		return
	}
	if err := h.service.DeleteFaculty(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "deleted")
}

// Admin

func (h *Handler) handleUpsertStock(w http.ResponseWriter, r *http.Request) {
	var in StockInput
	if !decodeBody(w, r, &in) {
		return
	}
	stock, err := h.service.UpsertStock(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stock)
}

func (h *Handler) handleListStock(w http.ResponseWriter, r *http.Request) {
	var filter StockFilter
	var ok bool
	if filter.BookID, ok = queryID(w, r, "book_id", false); !ok {
		return
	}
	if filter.BranchID, ok = queryID(w, r, "branch_id", false); !ok {
		return
	}
	rows, err := h.service.ListStock(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *Handler) handleLinkBookFaculty(w http.ResponseWriter, r *http.Request) {
	var in LinkInput
	if !decodeBody(w, r, &in) {
		return
	}
	if _, err := h.service.LinkBookFaculty(r.Context(), in); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusCreated, "ok")
}

func (h *Handler) handleUnlinkBookFaculty(w http.ResponseWriter, r *http.Request) {
	bookID, ok := queryID(w, r, "book_id", true)
	if !ok {
		return
	}
	facultyID, ok := queryID(w, r, "faculty_id", true)
	if !ok {
		return
	}
	if err := h.service.UnlinkBookFaculty(r.Context(), *bookID, *facultyID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "deleted")
}

func (h *Handler) handleListBookFaculties(w http.ResponseWriter, r *http.Request) {
	bookID, ok := queryID(w, r, "book_id", false)
	if !ok {
		return
	}
	links, err := h.service.ListBookFaculties(r.Context(), bookID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, links)
}

// Analytics

func (h *Handler) handleQuantity(w http.ResponseWriter, r *http.Request) {
	branchID, bookID, ok := analyticsIDs(w, r)
	if !ok {
		return
	}
	report, err := h.service.Quantity(r.Context(), branchID, bookID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleFacultyUsage(w http.ResponseWriter, r *http.Request) {
	branchID, bookID, ok := analyticsIDs(w, r)
	if !ok {
		return
	}
	usage, err := h.service.FacultyUsage(r.Context(), branchID, bookID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

func analyticsIDs(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	branchID, ok := pathID(w, r, "branchID", "branch id")
	if !ok {
		return 0, 0, false
	}
	bookID, ok := pathID(w, r, "bookID", "book id")
	if !ok {
		return 0, 0, false
	}
	return branchID, bookID, true
}

func pathID(w http.ResponseWriter, r *http.Request, param, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid "+name)
		return 0, false
	}
	return id, true
}

func queryID(w http.ResponseWriter, r *http.Request, key string, required bool) (*int64, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		if required {
			writeDetail(w, http.StatusUnprocessableEntity, key+" is required")
			return nil, false
		}
		return nil, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid "+key)
		return nil, false
	}
	return &id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid JSON body")
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, ErrValidation):
		status = http.StatusUnprocessableEntity
	default:
		h.logger.ErrorContext(r.Context(), "request failed",
			slog.String("id", RequestIDFromContext(r.Context())),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		writeDetail(w, http.StatusInternalServerError, "internal server error")
		return
	}

	detail := err.Error()
	var e *Error
	if errors.As(err, &e) {
		detail = e.Detail
	}
	writeDetail(w, status, detail)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
