/*
errors.go - Centralized error types for the payroll engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Calculator and engine packages wrap these with additional context.

ERROR CATEGORIES:
  1. Configuration gaps - No formula exists for a (type, category). Fatal
     for the employee being computed, reported to the caller.
  2. Degraded calculations - A loader or calculator hit a fault and fell back
     to zero. Logged and flagged on the result, never fatal.
  3. Employee record faults - A malformed loan/advance/benefit record. The
     record contributes zero, the run continues.
  4. Store errors - Persistence failures and duplicates.

USAGE:
  if formula.IsConfigurationGap(err) {
      // surface to the payroll operator, do not treat as zero
  }

SEE ALSO:
  - resolver.go: Returns ConfigurationGapError
  - rates.go: Fail-open loader
  - engine/orchestrator.go: Propagation policy
*/
package formula

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrFormulaNotFound is returned when no formula matches a lookup.
	ErrFormulaNotFound = errors.New("formula not found")

	// ErrComponentNotFound is returned when a payroll component id is unknown.
	ErrComponentNotFound = errors.New("payroll component not found")

	// ErrReliefNotFound is returned when a relief id is unknown.
	ErrReliefNotFound = errors.New("relief not found")

	// ErrDegradedCalculation marks a calculation that fell back to zero.
	ErrDegradedCalculation = errors.New("degraded calculation")

	// ErrEmployeeRecordFault marks a malformed employee deduction record.
	ErrEmployeeRecordFault = errors.New("employee record fault")

	// ErrInvalidFormula is returned when a formula definition fails validation.
	ErrInvalidFormula = errors.New("invalid formula")

	// ErrDuplicateFormula is returned when a formula id already exists.
	ErrDuplicateFormula = errors.New("duplicate formula id")

	// ErrInvalidRequest is returned for malformed engine input.
	ErrInvalidRequest = errors.New("invalid request")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ConfigurationGapError reports that no formula exists at all for a
// (type, category). It is distinct from a zero result.
type ConfigurationGapError struct {
	Type     Type
	Category Category
}

func (e *ConfigurationGapError) Error() string {
	return fmt.Sprintf("configuration gap: no formula for type=%s category=%s", e.Type, e.Category)
}

func (e *ConfigurationGapError) Unwrap() error {
	return ErrFormulaNotFound
}

// DegradedError records why a component fell back to zero.
type DegradedError struct {
	Component string
	FormulaID FormulaID
	Cause     error
}

func (e *DegradedError) Error() string {
	if e.FormulaID != "" {
		return fmt.Sprintf("%s degraded (formula %s): %v", e.Component, e.FormulaID, e.Cause)
	}
	return fmt.Sprintf("%s degraded: %v", e.Component, e.Cause)
}

func (e *DegradedError) Unwrap() []error {
	return []error{ErrDegradedCalculation, e.Cause}
}

// RecordFaultError describes a skipped employee record.
type RecordFaultError struct {
	Kind     string
	RecordID string
	Cause    error
}

func (e *RecordFaultError) Error() string {
	return fmt.Sprintf("%s record %s skipped: %v", e.Kind, e.RecordID, e.Cause)
}

func (e *RecordFaultError) Unwrap() []error {
	return []error{ErrEmployeeRecordFault, e.Cause}
}

// ValidationError describes a formula definition rejected by validation.
type ValidationError struct {
	FormulaID FormulaID
	Field     string
	Message   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("formula %s: %s: %s", e.FormulaID, e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidFormula
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsConfigurationGap returns true if err means a formula is missing entirely.
func IsConfigurationGap(err error) bool {
	var gap *ConfigurationGapError
	return errors.As(err, &gap)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrFormulaNotFound) ||
		errors.Is(err, ErrComponentNotFound) ||
		errors.Is(err, ErrReliefNotFound)
}

// IsClientError returns true if the error is due to invalid input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidFormula) ||
		errors.Is(err, ErrDuplicateFormula) ||
		errors.Is(err, ErrInvalidRequest)
}
