/*
handlers.go - HTTP API handlers for the payroll engine

PURPOSE:
  Thin HTTP wrapper over the engine. Handles HTTP request/response, JSON
  serialization and validation, and delegates to the engine, the batch
  runner, the formula factory and the stores.

ENDPOINTS:
  Deductions:
    POST   /api/employees/{id}/deductions  Compute one employee's breakdown
    GET    /api/employees/{id}/records     List loans, advances, charges, grants
    POST   /api/employees/{id}/records     Save a deduction record

  Payroll runs:
    POST   /api/payroll/runs               Compute many employees for a period

  Formulas:
    GET    /api/formulas                   List formulas (?type=&category=)
    POST   /api/formulas                   Create a formula version from JSON
    GET    /api/formulas/resolve           Formula in force (?type=&category=&as_of=)
    GET    /api/formulas/{id}              Get one formula with its rows

  Presets:
    GET    /api/presets                    List embedded bundles
    POST   /api/presets/{name}/seed        Seed an embedded bundle

REQUEST FLOW:
  1. Decode JSON body
  2. Validate with go-playground/validator struct tags
  3. Convert to engine/domain types
  4. Call the engine or store
  5. Serialize response

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, invalid formula
  - 404: Formula, component, relief or preset not found
  - 409: Duplicate formula id or a second current version
  - 422: Configuration gap (no formula at all for a required component)
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. Intended to sit behind the payroll
  orchestration service.

SEE ALSO:
  - dto.go: Request/response data structures
  - presets.go: Preset seeding endpoints
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/warp/payroll-engine/deductions"
	"github.com/warp/payroll-engine/engine"
	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/formula"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is the persistence the API needs; store/sqlite.Store satisfies it.
type Store interface {
	formula.Writer
	deductions.RecordWriter
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    Store
	Engine   *engine.Engine
	Runner   *engine.BatchRunner
	Resolver formula.Resolver
	Factory  *factory.FormulaFactory
	Seeder   *factory.Seeder
	Logger   *slog.Logger

	validate *validator.Validate
}

// NewHandler creates a handler computing against store. workers bounds
// payroll run concurrency.
func NewHandler(store Store, workers int, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	eng := engine.New(store, store, engine.Options{Logger: logger})
	return &Handler{
		Store:    store,
		Engine:   eng,
		Runner:   engine.NewBatchRunner(eng, workers, logger),
		Resolver: formula.NewResolver(store),
		Factory:  factory.NewFormulaFactory(),
		Seeder:   factory.NewSeeder(store, logger),
		Logger:   logger,
		validate: validator.New(),
	}
}

// =============================================================================
// DEDUCTION HANDLERS
// =============================================================================

// ComputeDeductions returns the full breakdown for one employee.
// POST /api/employees/{id}/deductions
func (h *Handler) ComputeDeductions(w http.ResponseWriter, r *http.Request) {
	var body ComputeRequest
	if err := h.decode(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	req, err := body.toEngine(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}

	breakdown, err := h.Engine.ComputeDeductions(r.Context(), req)
	if err != nil {
		h.writeDomainError(r.Context(), w, "Failed to compute deductions", err)
		return
	}
	writeJSON(w, http.StatusOK, breakdown)
}

// RunPayroll computes every employee of a payroll run. Per-employee
// failures are reported in the results, never as a failed request.
// POST /api/payroll/runs
func (h *Handler) RunPayroll(w http.ResponseWriter, r *http.Request) {
	var body RunRequest
	if err := h.decode(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	reqs, err := body.toEngine()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}

	run := h.Runner.Run(r.Context(), reqs)
	writeJSON(w, http.StatusOK, toRunResponse(run))
}

// =============================================================================
// RECORD HANDLERS
// =============================================================================

// ListRecords returns every record of an employee.
// GET /api/employees/{id}/records
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.Store.Records(r.Context(), deductions.EmployeeID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(r.Context(), w, "Failed to list records", err)
		return
	}

	dtos := make([]RecordDTO, len(records))
	for i, rec := range records {
		dtos[i] = toRecordDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateRecord saves a loan, advance, loss/damage charge or benefit grant.
// POST /api/employees/{id}/records
func (h *Handler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	var body RecordDTO
	if err := h.decode(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rec, err := body.toRecord(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid record", err)
		return
	}
	if err := h.Store.SaveRecord(r.Context(), rec); err != nil {
		h.writeDomainError(r.Context(), w, "Failed to save record", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRecordDTO(rec))
}

// =============================================================================
// FORMULA HANDLERS
// =============================================================================

// ListFormulas returns all formula versions, optionally filtered.
// GET /api/formulas?type=income_tax&category=primary_employee
func (h *Handler) ListFormulas(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	typ := formula.Type(r.URL.Query().Get("type"))
	cat := formula.Category(r.URL.Query().Get("category"))

	all, err := h.Store.ListFormulas(ctx)
	if err != nil {
		h.writeDomainError(ctx, w, "Failed to list formulas", err)
		return
	}

	dtos := []factory.FormulaJSON{}
	for _, f := range all {
		if (typ != "" && f.Type != typ) || (cat != "" && f.Category != cat) {
			continue
		}
		fj, err := h.formulaJSON(ctx, f)
		if err != nil {
			h.writeDomainError(ctx, w, "Failed to load formula", err)
			return
		}
		dtos = append(dtos, fj)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetFormula returns one formula version with its items and split.
// GET /api/formulas/{id}
func (h *Handler) GetFormula(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f, err := h.Store.Formula(ctx, formula.FormulaID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(ctx, w, "Failed to get formula", err)
		return
	}

	fj, err := h.formulaJSON(ctx, *f)
	if err != nil {
		h.writeDomainError(ctx, w, "Failed to load formula", err)
		return
	}
	writeJSON(w, http.StatusOK, fj)
}

// ResolveFormula returns the formula the engine would use on a date.
// GET /api/formulas/resolve?type=deduction&category=social_security&as_of=2025-02-28
func (h *Handler) ResolveFormula(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	typ := formula.Type(q.Get("type"))
	cat := formula.Category(q.Get("category"))
	if !typ.Valid() || !cat.Valid() {
		writeError(w, http.StatusBadRequest, "type and category are required", nil)
		return
	}
	asOf := formula.Today()
	if raw := q.Get("as_of"); raw != "" {
		d, err := formula.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid as_of", err)
			return
		}
		asOf = d
	}

	f, err := h.Resolver.Resolve(ctx, typ, cat, asOf, formula.FormulaID(q.Get("override")))
	if err != nil {
		h.writeDomainError(ctx, w, "Failed to resolve formula", err)
		return
	}

	fj, err := h.formulaJSON(ctx, *f)
	if err != nil {
		h.writeDomainError(ctx, w, "Failed to load formula", err)
		return
	}
	writeJSON(w, http.StatusOK, fj)
}

// CreateFormula validates and stores a new formula version. A current
// version replacing an older current one supersedes it.
// POST /api/formulas
func (h *Handler) CreateFormula(w http.ResponseWriter, r *http.Request) {
	var fj factory.FormulaJSON
	if err := json.NewDecoder(r.Body).Decode(&fj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	def, err := h.Factory.FromJSON(fj)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid formula", err)
		return
	}
	fj.ID = string(def.Formula.ID)

	report, err := h.Seeder.Seed(r.Context(), &factory.Bundle{Name: "api", Formulas: []factory.FormulaJSON{fj}})
	if err != nil {
		h.writeDomainError(r.Context(), w, "Failed to save formula", err)
		return
	}
	if len(report.Skipped) > 0 {
		writeError(w, http.StatusConflict, "Formula already exists",
			fmt.Errorf("%w: %s", formula.ErrDuplicateFormula, fj.ID))
		return
	}

	writeJSON(w, http.StatusCreated, CreateFormulaResponse{
		ID:         fj.ID,
		Superseded: formulaIDs(report.Superseded),
	})
}

func (h *Handler) formulaJSON(ctx context.Context, f formula.Formula) (factory.FormulaJSON, error) {
	items, err := h.Store.Items(ctx, f.ID)
	if err != nil {
		return factory.FormulaJSON{}, err
	}
	split, err := h.Store.SplitRatio(ctx, f.ID)
	if err != nil {
		return factory.FormulaJSON{}, err
	}
	return h.Factory.ToJSON(formula.Definition{Formula: f, Items: items, Split: split}), nil
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports liveness and, when the store supports it, reachability.
// GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Store.(interface{ Ping() error }); ok {
		if err := p.Ping(); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Store unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads a JSON body into dst and validates its struct tags.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", formula.ErrInvalidRequest, err)
	}
	if err := h.validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", formula.ErrInvalidRequest, err)
	}
	return nil
}

// writeDomainError maps engine and store errors to HTTP statuses.
func (h *Handler) writeDomainError(ctx context.Context, w http.ResponseWriter, message string, err error) {
	switch {
	case formula.IsConfigurationGap(err):
		writeError(w, http.StatusUnprocessableEntity, "Configuration gap", err)
	case errors.Is(err, formula.ErrDuplicateFormula), errors.Is(err, deductions.ErrRecordOwnership):
		writeError(w, http.StatusConflict, message, err)
	case formula.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case formula.IsNotFound(err), errors.Is(err, factory.ErrUnknownPreset):
		writeError(w, http.StatusNotFound, message, err)
	default:
		h.Logger.ErrorContext(ctx, message, "error", err)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
