package factory

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/payroll-engine/formula"
)

// =============================================================================
// BUNDLE - A full configuration set in one YAML document
// =============================================================================

// Bundle groups the reliefs, components and formulas of one jurisdiction.
type Bundle struct {
	Name       string          `json:"name" yaml:"name"`
	Reliefs    []ReliefJSON    `json:"reliefs,omitempty" yaml:"reliefs,omitempty"`
	Components []ComponentJSON `json:"components,omitempty" yaml:"components,omitempty"`
	Formulas   []FormulaJSON   `json:"formulas" yaml:"formulas"`
}

type ReliefJSON struct {
	ID         string          `json:"id" yaml:"id"`
	Name       string          `json:"name" yaml:"name"`
	Type       string          `json:"type" yaml:"type"`
	FixedLimit decimal.Decimal `json:"fixed_limit" yaml:"fixed_limit,omitempty"`
	Percentage decimal.Decimal `json:"percentage" yaml:"percentage,omitempty"`
	PercentOf  string          `json:"percent_of,omitempty" yaml:"percent_of,omitempty"`
	IsActive   bool            `json:"is_active" yaml:"is_active"`
	RepealedOn string          `json:"repealed_on,omitempty" yaml:"repealed_on,omitempty"`
}

type ComponentJSON struct {
	ID                string `json:"id" yaml:"id"`
	Name              string `json:"name" yaml:"name"`
	Category          string `json:"category" yaml:"category"`
	Mode              string `json:"mode,omitempty" yaml:"mode,omitempty"`
	NonCash           bool   `json:"non_cash,omitempty" yaml:"non_cash,omitempty"`
	DeductAfterTaxing bool   `json:"deduct_after_taxing,omitempty" yaml:"deduct_after_taxing,omitempty"`
	ApplicableRelief  string `json:"applicable_relief,omitempty" yaml:"applicable_relief,omitempty"`
	Checkoff          bool   `json:"checkoff,omitempty" yaml:"checkoff,omitempty"`
	Statutory         bool   `json:"statutory,omitempty" yaml:"statutory,omitempty"`
	Phase             string `json:"phase,omitempty" yaml:"phase,omitempty"`
	Priority          int    `json:"priority,omitempty" yaml:"priority,omitempty"`
}

// ParseBundleYAML decodes a YAML bundle.
func ParseBundleYAML(data []byte) (*Bundle, error) {
	var b Bundle
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: failed to parse bundle YAML: %v", formula.ErrInvalidFormula, err)
	}
	return &b, nil
}

// LoadBundleFile reads a YAML bundle from disk.
func LoadBundleFile(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle %s: %w", path, err)
	}
	return ParseBundleYAML(data)
}

// YAML encodes the bundle.
func (b *Bundle) YAML() ([]byte, error) {
	return yaml.Marshal(b)
}

func (rj ReliefJSON) toRelief() (formula.Relief, error) {
	r := formula.Relief{
		ID:         formula.ReliefID(rj.ID),
		Name:       rj.Name,
		Type:       formula.ReliefType(rj.Type),
		FixedLimit: rj.FixedLimit,
		Percentage: rj.Percentage,
		PercentOf:  formula.PercentOf(rj.PercentOf),
		IsActive:   rj.IsActive,
	}
	if rj.ID == "" {
		return r, fmt.Errorf("%w: relief without id", formula.ErrInvalidFormula)
	}
	if r.Type == "" {
		r.Type = formula.ReliefDeductible
	}
	if rj.RepealedOn != "" {
		d, err := formula.ParseDate(rj.RepealedOn)
		if err != nil {
			return r, fmt.Errorf("%w: relief %s: %v", formula.ErrInvalidFormula, rj.ID, err)
		}
		r.RepealedOn = &d
	}
	return r, nil
}

func (cj ComponentJSON) toComponent() (formula.PayrollComponent, error) {
	c := formula.PayrollComponent{
		ID:                formula.ComponentID(cj.ID),
		Name:              cj.Name,
		Category:          formula.ComponentCategory(cj.Category),
		Mode:              formula.PaymentMode(cj.Mode),
		NonCash:           cj.NonCash,
		DeductAfterTaxing: cj.DeductAfterTaxing,
		ApplicableRelief:  formula.ReliefID(cj.ApplicableRelief),
		Checkoff:          cj.Checkoff,
		Statutory:         cj.Statutory,
		Phase:             formula.Phase(cj.Phase),
		Priority:          cj.Priority,
	}
	if cj.ID == "" {
		return c, fmt.Errorf("%w: component without id", formula.ErrInvalidFormula)
	}
	if c.Mode == "" {
		c.Mode = formula.ModeMonthly
	}
	if c.Phase != "" && !c.Phase.Valid() {
		return c, fmt.Errorf("%w: component %s: unknown phase %q", formula.ErrInvalidFormula, cj.ID, cj.Phase)
	}
	return c, nil
}

// =============================================================================
// SEEDER - Idempotent bootstrap of a formula store
// =============================================================================

// SeedReport lists what a Seed call changed.
type SeedReport struct {
	Inserted   []formula.FormulaID
	Superseded []formula.FormulaID
	Skipped    []formula.FormulaID

	// Overlapping lists inserted formulas whose effective range overlaps
	// another formula of the same (type, category).
	Overlapping []formula.FormulaID
	Reliefs     int
	Components  int
}

// Seeder writes bundles into a formula.Writer. Seeding is idempotent: a
// formula whose id already exists is left untouched, so the same bundle can
// be applied at every deployment.
type Seeder struct {
	Writer  formula.Writer
	Factory *FormulaFactory
	Logger  *slog.Logger
}

func NewSeeder(w formula.Writer, logger *slog.Logger) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{Writer: w, Factory: NewFormulaFactory(), Logger: logger}
}

// Seed validates the whole bundle first, then writes it. Reliefs and
// components are upserted. A new current formula replacing an older current
// one of the same (type, category) supersedes it.
func (s *Seeder) Seed(ctx context.Context, b *Bundle) (*SeedReport, error) {
	reliefs := make([]formula.Relief, 0, len(b.Reliefs))
	for _, rj := range b.Reliefs {
		r, err := rj.toRelief()
		if err != nil {
			return nil, err
		}
		reliefs = append(reliefs, r)
	}
	components := make([]formula.PayrollComponent, 0, len(b.Components))
	for _, cj := range b.Components {
		c, err := cj.toComponent()
		if err != nil {
			return nil, err
		}
		components = append(components, c)
	}
	defs := make([]*formula.Definition, 0, len(b.Formulas))
	for _, fj := range b.Formulas {
		if fj.ID == "" {
			return nil, &formula.ValidationError{Field: "id", Message: "seeded formulas need a stable id"}
		}
		def, err := s.Factory.FromJSON(fj)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}

	report := &SeedReport{}
	for _, r := range reliefs {
		if err := s.Writer.SaveRelief(ctx, r); err != nil {
			return report, fmt.Errorf("failed to save relief %s: %w", r.ID, err)
		}
		report.Reliefs++
	}
	for _, c := range components {
		if err := s.Writer.SaveComponent(ctx, c); err != nil {
			return report, fmt.Errorf("failed to save component %s: %w", c.ID, err)
		}
		report.Components++
	}
	for _, def := range defs {
		if err := s.seedFormula(ctx, *def, report); err != nil {
			return report, err
		}
	}

	s.Logger.InfoContext(ctx, "formula bundle seeded",
		"bundle", b.Name,
		"inserted", len(report.Inserted),
		"superseded", len(report.Superseded),
		"skipped", len(report.Skipped),
	)
	return report, nil
}

func (s *Seeder) seedFormula(ctx context.Context, def formula.Definition, report *SeedReport) error {
	id := def.Formula.ID
	_, err := s.Writer.Formula(ctx, id)
	switch {
	case err == nil:
		report.Skipped = append(report.Skipped, id)
		return nil
	case !formula.IsNotFound(err):
		return fmt.Errorf("failed to look up formula %s: %w", id, err)
	}

	if def.Formula.IsCurrent {
		current, err := s.currentFormula(ctx, def.Formula.Type, def.Formula.Category)
		if err != nil {
			return err
		}
		if current != nil && def.Formula.EffectiveFrom.After(current.EffectiveFrom) {
			if err := s.Writer.Supersede(ctx, current.ID, def); err != nil {
				return fmt.Errorf("failed to supersede %s with %s: %w", current.ID, id, err)
			}
			report.Superseded = append(report.Superseded, current.ID)
			report.Inserted = append(report.Inserted, id)
			return nil
		}
	}

	if err := s.warnOverlaps(ctx, def.Formula, report); err != nil {
		return err
	}
	if err := s.Writer.SaveFormula(ctx, def); err != nil {
		return fmt.Errorf("failed to save formula %s: %w", id, err)
	}
	report.Inserted = append(report.Inserted, id)
	return nil
}

// warnOverlaps logs formulas of the same (type, category) whose effective
// range shares a day with f. Resolution still picks the latest
// EffectiveFrom, so overlap is a data-quality warning, not an error.
func (s *Seeder) warnOverlaps(ctx context.Context, f formula.Formula, report *SeedReport) error {
	existing, err := s.Writer.FormulasFor(ctx, f.Type, f.Category)
	if err != nil {
		return fmt.Errorf("failed to list formulas: %w", err)
	}
	overlapping := false
	for _, other := range existing {
		if !f.EffectiveRange().Overlaps(other.EffectiveRange()) {
			continue
		}
		overlapping = true
		s.Logger.WarnContext(ctx, "formula effective ranges overlap",
			"formula_id", f.ID,
			"range", f.EffectiveRange().String(),
			"other_id", other.ID,
			"other_range", other.EffectiveRange().String(),
		)
	}
	if overlapping {
		report.Overlapping = append(report.Overlapping, f.ID)
	}
	return nil
}

func (s *Seeder) currentFormula(ctx context.Context, t formula.Type, c formula.Category) (*formula.Formula, error) {
	existing, err := s.Writer.FormulasFor(ctx, t, c)
	if err != nil {
		return nil, fmt.Errorf("failed to list formulas: %w", err)
	}
	for i := range existing {
		if existing[i].IsCurrent {
			return &existing[i], nil
		}
	}
	return nil, nil
}
