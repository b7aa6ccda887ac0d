// Package chi exposes the HTTP API: catalog management, embedding sync, and
// semantic search.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pravoline/allowdex/internal/domain"
	cataloguc "github.com/pravoline/allowdex/internal/usecase/catalog"
	healthuc "github.com/pravoline/allowdex/internal/usecase/health"
	indexuc "github.com/pravoline/allowdex/internal/usecase/index"
	searchuc "github.com/pravoline/allowdex/internal/usecase/search"
)

// Error codes returned in the JSON error body.
const (
	codeBadRequest       = "bad_request"
	codeValidationFailed = "validation_failed"
	codeNotFound         = "not_found"
	codeProcessingFailed = "processing_failed"
	codeInternalError    = "internal_error"
)

// errorResponse is the JSON error body.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server wires the usecase services into HTTP handlers.
type Server struct {
	catalog       *cataloguc.Service
	search        *searchuc.Service
	index         *indexuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	catalog *cataloguc.Service,
	search *searchuc.Service,
	index *indexuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		catalog: catalog,
		search:  search,
		index:   index,
		health:  health,
		logger:  logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeNotFound),
		sentinelHandler(domain.ErrProcessing, http.StatusInternalServerError, codeProcessingFailed),
	}
	return s
}

// Routes registers all API handlers on the router.
func (s *Server) Routes(r chi.Router) {
	r.Route("/allowances", func(r chi.Router) {
		r.Post("/", s.CreateAllowance)
		r.Get("/", s.ListAllowances)
		r.Get("/{id}", s.GetAllowance)
		r.Delete("/{id}", s.DeleteAllowance)
		r.Post("/vector-search", s.VectorSearch)
	})
	r.Route("/embeddings", func(r chi.Router) {
		r.Post("/input", s.VectorizeInput)
		r.Post("/allowances", s.IndexAllowances)
		r.Post("/allowances/missing", s.IndexMissing)
		r.Post("/rebuild", s.RebuildEmbeddings)
	})
	r.Get("/health", s.Health)
}

// --- Catalog ---

type allowanceRequest struct {
	Name           string   `json:"name"`
	LegalBasis     string   `json:"legal_basis,omitempty"`
	Level          string   `json:"level,omitempty"`
	Subjects       []string `json:"subjects,omitempty"`
	ValidityPeriod string   `json:"validity_period,omitempty"`
}

type allowanceResponse struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	LegalBasis     string    `json:"legal_basis,omitempty"`
	Level          string    `json:"level,omitempty"`
	Subjects       []string  `json:"subjects,omitempty"`
	ValidityPeriod string    `json:"validity_period,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// CreateAllowance handles POST /allowances.
func (s *Server) CreateAllowance(w http.ResponseWriter, r *http.Request) {
	var req allowanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	created, err := s.catalog.Create(r.Context(), domain.Allowance{
		Name:           req.Name,
		LegalBasis:     req.LegalBasis,
		Level:          req.Level,
		Subjects:       req.Subjects,
		ValidityPeriod: req.ValidityPeriod,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, allowanceToResponse(created))
}

// ListAllowances handles GET /allowances.
func (s *Server) ListAllowances(w http.ResponseWriter, r *http.Request) {
	items, err := s.catalog.List(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	out := make([]allowanceResponse, len(items))
	for i, a := range items {
		out[i] = allowanceToResponse(a)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out, "count": len(out)})
}

// GetAllowance handles GET /allowances/{id}.
func (s *Server) GetAllowance(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "Invalid allowance id")
		return
	}

	a, err := s.catalog.Get(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, allowanceToResponse(a))
}

// DeleteAllowance handles DELETE /allowances/{id}.
func (s *Server) DeleteAllowance(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "Invalid allowance id")
		return
	}

	if err := s.catalog.Delete(r.Context(), id); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Search ---

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// VectorSearch handles POST /allowances/vector-search.
func (s *Server) VectorSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Limit < 0 {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "limit must be non-negative")
		return
	}

	results, err := s.search.Search(r.Context(), req.Query, req.Limit)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results, "count": len(results)})
}

// --- Embeddings ---

type vectorizeRequest struct {
	Text string `json:"text"`
}

// VectorizeInput handles POST /embeddings/input.
func (s *Server) VectorizeInput(w http.ResponseWriter, r *http.Request) {
	var req vectorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	vec, err := s.search.VectorizeInput(r.Context(), req.Text)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vec)
}

type indexByIDsRequest struct {
	AllowanceIDs []int64 `json:"allowance_ids"`
}

type indexByIDsResponse struct {
	ProcessedIDs []int64 `json:"processed_ids"`
	MissingIDs   []int64 `json:"missing_ids"`
}

// IndexAllowances handles POST /embeddings/allowances.
func (s *Server) IndexAllowances(w http.ResponseWriter, r *http.Request) {
	var req indexByIDsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	processed, missing, err := s.index.IndexByIDs(r.Context(), req.AllowanceIDs)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if processed == nil {
		processed = []int64{}
	}
	if missing == nil {
		missing = []int64{}
	}
	writeJSON(w, http.StatusOK, indexByIDsResponse{ProcessedIDs: processed, MissingIDs: missing})
}

// IndexMissing handles POST /embeddings/allowances/missing.
func (s *Server) IndexMissing(w http.ResponseWriter, r *http.Request) {
	count, err := s.index.IndexMissing(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"indexed_count": count})
}

// RebuildEmbeddings handles POST /embeddings/rebuild: drops all embedding
// rows and the index, then re-indexes the whole catalog.
func (s *Server) RebuildEmbeddings(w http.ResponseWriter, r *http.Request) {
	count, err := s.index.Rebuild(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"indexed_count": count})
}

// --- Health ---

// Health handles GET /health.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// --- Helpers ---

func allowanceToResponse(a domain.Allowance) allowanceResponse {
	return allowanceResponse{
		ID:             a.ID,
		Name:           a.Name,
		LegalBasis:     a.LegalBasis,
		Level:          a.Level,
		Subjects:       a.Subjects,
		ValidityPeriod: a.ValidityPeriod,
		CreatedAt:      a.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage exposes sentinel messages only; wrapped detail stays in
// the logs.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrValidation,
		domain.ErrNotFound,
		domain.ErrProcessing,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
