/*
orchestrator.go - Deduction-order state machine

PURPOSE:
  Runs the configured components phase by phase:

    before_tax -> after_tax -> after_paye -> final

  Within a phase, components run in declaration order. Employee amounts of
  the before_tax phase reduce taxable pay for anything that runs after them.

RULES:
  - Unknown component names are skipped with a WARN (forward compatible).
  - Unknown phase keys are ignored with a WARN.
  - A component listed twice runs once.
  - Final-phase lines and non-cash benefits are record-only: they appear in
    the breakdown but do not reduce net pay.
  - A configuration gap aborts the employee; anything else degrades.

SEE ALSO:
  - components.go: Handler table
  - engine.go: Facade building the run
*/
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/deductions"
	"github.com/warp/payroll-engine/formula"
	"github.com/warp/payroll-engine/statutory"
)

// calculators are the statutory calculators for one computation.
type calculators struct {
	socialSecurity *statutory.SocialSecurity
	health         *statutory.HealthInsurance
	legacyHealth   *statutory.LegacyHealthInsurance
	housingLevy    *statutory.HousingLevy
	incomeTax      *statutory.IncomeTax
}

// state is the mutable context of one employee's computation.
type state struct {
	req    Request
	calc   calculators
	agg    *deductions.Aggregator
	logger *slog.Logger

	beforeTax decimal.Decimal // employee amounts charged before tax
	reliefs   decimal.Decimal // reliefs granted by statutory components
	totals    *deductions.Totals

	out *Breakdown
}

func (s *state) input(amount decimal.Decimal, t formula.Type) statutory.Input {
	return statutory.Input{
		Amount:   amount,
		AsOf:     s.req.PaymentPeriod,
		Override: s.req.Overrides[t],
	}
}

func (s *state) taxable() decimal.Decimal {
	return formula.MaxZero(s.out.GrossPay.Sub(s.beforeTax))
}

func (s *state) addRelief(r decimal.Decimal) {
	s.reliefs = s.reliefs.Add(r)
}

// recordTotals aggregates the employee's records once per computation.
func (s *state) recordTotals(ctx context.Context) deductions.Totals {
	if s.totals == nil {
		t := s.agg.Aggregate(ctx, s.req.EmployeeID, s.req.GrossPay)
		for _, f := range t.Faults {
			s.out.RecordFaults = append(s.out.RecordFaults, f.Error())
		}
		s.totals = &t
	}
	return *s.totals
}

// =============================================================================
// ORCHESTRATION
// =============================================================================

// orchestrate runs every phase of order and fills s.out.
func orchestrate(ctx context.Context, s *state, order formula.DeductionOrder) error {
	for _, p := range order.UnknownPhases() {
		s.logger.WarnContext(ctx, "unknown deduction phase ignored", "phase", p)
		s.out.Skipped = append(s.out.Skipped, fmt.Sprintf("phase:%s", p))
	}

	seen := make(map[ComponentKind]bool)
	for _, phase := range formula.Phases {
		if err := runPhase(ctx, s, phase, order[phase], seen); err != nil {
			return err
		}
		if phase == formula.PhaseBeforeTax {
			s.out.TaxablePay = s.taxable()
		}
	}
	s.out.finish()
	return nil
}

func runPhase(ctx context.Context, s *state, phase formula.Phase, names []string, seen map[ComponentKind]bool) error {
	result := s.out.Phase(phase)
	for _, name := range names {
		kind, ok := ParseComponentKind(name)
		if !ok {
			s.logger.WarnContext(ctx, "unknown deduction component skipped", "phase", phase, "component", name)
			s.out.Skipped = append(s.out.Skipped, name)
			continue
		}
		if seen[kind] {
			s.logger.WarnContext(ctx, "duplicate deduction component skipped", "phase", phase, "component", name)
			s.out.Skipped = append(s.out.Skipped, name)
			continue
		}
		seen[kind] = true

		line, err := handlers[kind](ctx, s)
		if err != nil {
			return fmt.Errorf("%s: %w", kind, err)
		}
		if phase == formula.PhaseFinal {
			line.RecordOnly = true
		}
		if phase == formula.PhaseBeforeTax && !line.RecordOnly {
			s.beforeTax = s.beforeTax.Add(line.Amount)
		}
		if line.Degraded {
			s.out.Degraded = true
			s.out.DegradedComponents = append(s.out.DegradedComponents, string(kind))
		}
		result.Components = append(result.Components, line)
	}
	return nil
}
