/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Request types carry
  validator tags; responses reuse engine.Breakdown and factory.FormulaJSON
  where those already have a stable JSON form.

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *DTO: Response types returned to clients
  - *Response: Complex response wrappers

MONEY:
  Amounts are decimal strings ("180119.00") in requests and responses, so
  no value ever passes through a float.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/formula.go: FormulaJSON type
*/
package api

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/deductions"
	"github.com/warp/payroll-engine/engine"
	"github.com/warp/payroll-engine/formula"
	"github.com/warp/payroll-engine/statutory"
)

// =============================================================================
// DEDUCTIONS
// =============================================================================

// ComputeRequest is the body of POST /api/employees/{id}/deductions.
type ComputeRequest struct {
	GrossPay      string `json:"gross_pay" validate:"required,numeric"`
	PaymentPeriod string `json:"payment_period" validate:"required,datetime=2006-01-02"`
	TaxCategory   string `json:"tax_category,omitempty" validate:"omitempty,oneof=primary secondary none"`

	// Overrides maps a formula type ("income_tax", "deduction", "levy") to
	// a formula id.
	Overrides map[string]string `json:"overrides,omitempty" validate:"omitempty,dive,keys,required,endkeys,required"`
}

func (r ComputeRequest) toEngine(employee string) (engine.Request, error) {
	gross, err := decimal.NewFromString(r.GrossPay)
	if err != nil {
		return engine.Request{}, fmt.Errorf("%w: gross_pay: %v", formula.ErrInvalidRequest, err)
	}
	period, err := formula.ParseDate(r.PaymentPeriod)
	if err != nil {
		return engine.Request{}, fmt.Errorf("%w: payment_period: %v", formula.ErrInvalidRequest, err)
	}

	req := engine.Request{
		EmployeeID:    deductions.EmployeeID(employee),
		GrossPay:      gross,
		PaymentPeriod: period,
		TaxCategory:   statutory.TaxCategory(r.TaxCategory),
	}
	if len(r.Overrides) > 0 {
		req.Overrides = make(map[formula.Type]formula.FormulaID, len(r.Overrides))
		for t, id := range r.Overrides {
			ft := formula.Type(t)
			if !ft.Valid() {
				return engine.Request{}, fmt.Errorf("%w: unknown override type %q", formula.ErrInvalidRequest, t)
			}
			req.Overrides[ft] = formula.FormulaID(id)
		}
	}
	return req, nil
}

// =============================================================================
// PAYROLL RUNS
// =============================================================================

// RunEmployeeRequest is one employee inside a payroll run.
type RunEmployeeRequest struct {
	EmployeeID  string `json:"employee_id" validate:"required"`
	GrossPay    string `json:"gross_pay" validate:"required,numeric"`
	TaxCategory string `json:"tax_category,omitempty" validate:"omitempty,oneof=primary secondary none"`
}

// RunRequest is the body of POST /api/payroll/runs.
type RunRequest struct {
	PaymentPeriod string               `json:"payment_period" validate:"required,datetime=2006-01-02"`
	Employees     []RunEmployeeRequest `json:"employees" validate:"required,min=1,dive"`
}

func (r RunRequest) toEngine() ([]engine.Request, error) {
	reqs := make([]engine.Request, 0, len(r.Employees))
	for _, e := range r.Employees {
		req, err := ComputeRequest{
			GrossPay:      e.GrossPay,
			PaymentPeriod: r.PaymentPeriod,
			TaxCategory:   e.TaxCategory,
		}.toEngine(e.EmployeeID)
		if err != nil {
			return nil, fmt.Errorf("employee %s: %w", e.EmployeeID, err)
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// EmployeeResultDTO is one employee's outcome in a run.
type EmployeeResultDTO struct {
	EmployeeID       string            `json:"employee_id"`
	Breakdown        *engine.Breakdown `json:"breakdown,omitempty"`
	Error            string            `json:"error,omitempty"`
	ConfigurationGap bool              `json:"configuration_gap,omitempty"`
}

// RunResponse summarises a payroll run.
type RunResponse struct {
	RunID       string              `json:"run_id"`
	StartedAt   string              `json:"started_at"`
	FinishedAt  string              `json:"finished_at"`
	Employees   int                 `json:"employees"`
	Failed      int                 `json:"failed"`
	Degraded    int                 `json:"degraded"`
	Resolutions int                 `json:"resolutions"`
	Results     []EmployeeResultDTO `json:"results"`
}

func toRunResponse(run *engine.RunResult) RunResponse {
	resp := RunResponse{
		RunID:       run.RunID,
		StartedAt:   run.StartedAt.Format(time.RFC3339),
		FinishedAt:  run.FinishedAt.Format(time.RFC3339),
		Employees:   len(run.Results),
		Failed:      run.Failed,
		Degraded:    run.Degraded,
		Resolutions: run.Resolutions,
		Results:     make([]EmployeeResultDTO, len(run.Results)),
	}
	for i, r := range run.Results {
		dto := EmployeeResultDTO{EmployeeID: string(r.EmployeeID), Breakdown: r.Breakdown}
		if r.Err != nil {
			dto.Error = r.Err.Error()
			dto.ConfigurationGap = formula.IsConfigurationGap(r.Err)
		}
		resp.Results[i] = dto
	}
	return resp
}

// =============================================================================
// FORMULAS
// =============================================================================

// CreateFormulaResponse reports what POST /api/formulas wrote.
type CreateFormulaResponse struct {
	ID         string   `json:"id"`
	Superseded []string `json:"superseded,omitempty"`
}

// =============================================================================
// EMPLOYEE RECORDS
// =============================================================================

// RecordDTO is a loan, advance, loss/damage charge or benefit grant.
type RecordDTO struct {
	ID          string `json:"id" validate:"required"`
	Kind        string `json:"kind" validate:"required,oneof=loan advance loss_damage benefit_grant"`
	Amount      string `json:"amount,omitempty" validate:"omitempty,numeric"`
	Installment string `json:"installment,omitempty" validate:"omitempty,numeric"`
	Percentage  string `json:"percentage,omitempty" validate:"omitempty,numeric"`

	RepayAmount       string `json:"repay_amount,omitempty" validate:"omitempty,numeric"`
	RepayInstallments int    `json:"repay_installments,omitempty" validate:"omitempty,min=1"`

	ComponentID string `json:"component_id,omitempty" validate:"required_if=Kind benefit_grant"`
	Active      bool   `json:"active"`
	IssuedOn    string `json:"issued_on,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Description string `json:"description,omitempty"`
}

func optionalDecimal(field, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s: %v", formula.ErrInvalidRequest, field, err)
	}
	return d, nil
}

func (d RecordDTO) toRecord(employee string) (deductions.Record, error) {
	r := deductions.Record{
		ID:          d.ID,
		Kind:        deductions.RecordKind(d.Kind),
		EmployeeID:  deductions.EmployeeID(employee),
		ComponentID: formula.ComponentID(d.ComponentID),
		Active:      d.Active,
		Description: d.Description,
	}

	var err error
	if r.Amount, err = optionalDecimal("amount", d.Amount); err != nil {
		return r, err
	}
	if r.Installment, err = optionalDecimal("installment", d.Installment); err != nil {
		return r, err
	}
	if r.Percentage, err = optionalDecimal("percentage", d.Percentage); err != nil {
		return r, err
	}
	if d.RepayAmount != "" {
		total, err := optionalDecimal("repay_amount", d.RepayAmount)
		if err != nil {
			return r, err
		}
		if d.RepayInstallments <= 0 {
			return r, fmt.Errorf("%w: repay_installments must be positive", formula.ErrInvalidRequest)
		}
		r.Repay = &deductions.RepayOption{Amount: total, Installments: d.RepayInstallments}
	}
	if d.IssuedOn != "" {
		if r.IssuedOn, err = formula.ParseDate(d.IssuedOn); err != nil {
			return r, fmt.Errorf("%w: issued_on: %v", formula.ErrInvalidRequest, err)
		}
	}
	return r, nil
}

func toRecordDTO(r deductions.Record) RecordDTO {
	dto := RecordDTO{
		ID:          r.ID,
		Kind:        string(r.Kind),
		Amount:      r.Amount.String(),
		Installment: r.Installment.String(),
		Percentage:  r.Percentage.String(),
		ComponentID: string(r.ComponentID),
		Active:      r.Active,
		Description: r.Description,
	}
	if r.Repay != nil {
		dto.RepayAmount = r.Repay.Amount.String()
		dto.RepayInstallments = r.Repay.Installments
	}
	if !r.IssuedOn.IsZero() {
		dto.IssuedOn = r.IssuedOn.String()
	}
	return dto
}

// =============================================================================
// PRESETS
// =============================================================================

// SeedReportDTO reports a preset seeding.
type SeedReportDTO struct {
	Preset      string   `json:"preset"`
	Inserted    []string `json:"inserted"`
	Superseded  []string `json:"superseded"`
	Skipped     []string `json:"skipped"`
	Overlapping []string `json:"overlapping,omitempty"`
	Reliefs     int      `json:"reliefs"`
	Components  int      `json:"components"`
}

func formulaIDs(ids []formula.FormulaID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is returned for any failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
