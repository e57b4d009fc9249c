package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/warp/payroll-engine/factory"
)

// =============================================================================
// PRESET HANDLERS
// =============================================================================

// ListPresets returns the names of the embedded formula bundles.
// GET /api/presets
func (h *Handler) ListPresets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, factory.Presets())
}

// SeedPreset seeds an embedded bundle. Seeding is idempotent, so loading the
// same preset twice only reports skipped formulas the second time.
// POST /api/presets/{name}/seed
func (h *Handler) SeedPreset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	bundle, err := factory.Preset(name)
	if err != nil {
		h.writeDomainError(r.Context(), w, "Failed to load preset", err)
		return
	}

	report, err := h.Seeder.Seed(r.Context(), bundle)
	if err != nil {
		h.writeDomainError(r.Context(), w, "Failed to seed preset", err)
		return
	}

	writeJSON(w, http.StatusOK, SeedReportDTO{
		Preset:      name,
		Inserted:    formulaIDs(report.Inserted),
		Superseded:  formulaIDs(report.Superseded),
		Skipped:     formulaIDs(report.Skipped),
		Overlapping: formulaIDs(report.Overlapping),
		Reliefs:     report.Reliefs,
		Components:  report.Components,
	})
}
