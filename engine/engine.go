/*
engine.go - ComputeDeductions facade

PURPOSE:
  The single in-process entry point: one employee, one payment period, one
  gross pay in; a Breakdown out. Each call only reads configuration and the
  employee's records, so calls are independent and safe to run concurrently.

USAGE:
  eng := engine.New(store, records, engine.Options{Logger: logger})
  b, err := eng.ComputeDeductions(ctx, engine.Request{
      EmployeeID:    "emp-42",
      GrossPay:      decimal.RequireFromString("180119"),
      PaymentPeriod: formula.NewDate(2025, time.February, 28),
      TaxCategory:   statutory.TaxPrimary,
  })

ERRORS:
  - ErrInvalidRequest: malformed request
  - *formula.ConfigurationGapError: a required formula does not exist
  Degraded components and skipped records are reported on the Breakdown.

SEE ALSO:
  - orchestrator.go: Phase state machine
  - batch.go: Concurrent payroll run
*/
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/deductions"
	"github.com/warp/payroll-engine/formula"
	"github.com/warp/payroll-engine/statutory"
)

// Request is the input of ComputeDeductions.
type Request struct {
	EmployeeID    deductions.EmployeeID
	GrossPay      decimal.Decimal
	PaymentPeriod formula.Date
	TaxCategory   statutory.TaxCategory

	// Overrides pins a formula per type. An override is ignored unless the
	// formula is current and of the category being computed.
	Overrides map[formula.Type]formula.FormulaID
}

func (r Request) validate() error {
	if r.EmployeeID == "" {
		return fmt.Errorf("%w: employee id is required", formula.ErrInvalidRequest)
	}
	if r.GrossPay.IsNegative() {
		return fmt.Errorf("%w: gross pay must not be negative", formula.ErrInvalidRequest)
	}
	if r.PaymentPeriod.IsZero() {
		return fmt.Errorf("%w: payment period is required", formula.ErrInvalidRequest)
	}
	if _, ok := statutory.ParseTaxCategory(string(r.TaxCategory)); !ok {
		return fmt.Errorf("%w: unknown tax category %q", formula.ErrInvalidRequest, r.TaxCategory)
	}
	return nil
}

// Options tune an Engine.
type Options struct {
	Logger *slog.Logger

	// SocialSecurityTierThreshold is the lower bound of tier II. Zero derives
	// it from the formula's brackets.
	SocialSecurityTierThreshold decimal.Decimal
}

// Engine computes employee deductions.
type Engine struct {
	store    formula.Store
	records  deductions.RecordStore
	resolver formula.Resolver
	opts     Options
}

func New(store formula.Store, records deductions.RecordStore, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		store:    store,
		records:  records,
		resolver: formula.NewResolver(store),
		opts:     opts,
	}
}

// WithResolver returns a copy of the engine resolving through r, e.g. a
// CachingResolver shared by one payroll run.
func (e *Engine) WithResolver(r formula.Resolver) *Engine {
	cp := *e
	cp.resolver = r
	return &cp
}

// Store returns the formula store the engine reads.
func (e *Engine) Store() formula.Store { return e.store }

// ComputeDeductions runs the deduction order for one employee and period.
func (e *Engine) ComputeDeductions(ctx context.Context, req Request) (*Breakdown, error) {
	if req.TaxCategory == "" {
		req.TaxCategory = statutory.TaxPrimary
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	logger := e.opts.Logger.With("employee_id", req.EmployeeID, "period", req.PaymentPeriod.String())
	deps := statutory.Deps{
		Resolver: e.resolver,
		Loader:   formula.NewRateLoader(e.store, logger),
		Logger:   logger,
	}

	s := &state{
		req: req,
		calc: calculators{
			socialSecurity: statutory.NewSocialSecurity(deps, e.opts.SocialSecurityTierThreshold),
			health:         statutory.NewHealthInsurance(deps),
			legacyHealth:   statutory.NewLegacyHealthInsurance(deps),
			housingLevy:    statutory.NewHousingLevy(deps),
			incomeTax:      statutory.NewIncomeTax(deps),
		},
		agg:       deductions.NewAggregator(e.records, e.store, logger),
		logger:    logger,
		beforeTax: decimal.Zero,
		reliefs:   decimal.Zero,
		out:       newBreakdown(req),
	}

	if err := orchestrate(ctx, s, e.deductionOrder(ctx, req, logger)); err != nil {
		logger.ErrorContext(ctx, "deduction computation aborted", "error", err)
		return nil, err
	}
	return s.out, nil
}

// deductionOrder reads the order declared on the income-tax formula in
// force for the employee's category. Without one, the default order runs.
func (e *Engine) deductionOrder(ctx context.Context, req Request, logger *slog.Logger) formula.DeductionOrder {
	category := formula.CategoryPrimaryEmployee
	if req.TaxCategory == statutory.TaxSecondary {
		category = formula.CategorySecondaryEmployee
	}
	f, err := e.resolver.Resolve(ctx, formula.TypeIncomeTax, category, req.PaymentPeriod, req.Overrides[formula.TypeIncomeTax])
	if err != nil {
		if !errors.Is(err, formula.ErrFormulaNotFound) {
			logger.WarnContext(ctx, "deduction order lookup failed, using default", "error", err)
		}
		return formula.DefaultDeductionOrder()
	}
	return f.DeductionOrder.OrDefault()
}
