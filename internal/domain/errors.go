// Package domain provides core domain models and error types shared by the
// simulation engine, the market data layer and the service surfaces.
package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the engine's failure taxonomy. Callers match them with
// errors.Is; all constructors below wrap these so context is preserved.
var (
	// ErrConfiguration indicates an invalid simulation configuration
	// (weights that do not sum to ~1.0, negative weights, bad policy params).
	ErrConfiguration = errors.New("invalid configuration")

	// ErrInsufficientData indicates a price history shorter than the
	// required minimum observation window.
	ErrInsufficientData = errors.New("insufficient price history")

	// ErrInvalidState indicates the portfolio reached an impossible state
	// mid-run (total value <= 0). The run aborts with a partial result.
	ErrInvalidState = errors.New("invalid portfolio state")

	// ErrUnsupportedPolicy indicates an unknown rebalancing policy name.
	ErrUnsupportedPolicy = errors.New("unsupported rebalancing policy")

	// ErrRiskCalculation wraps failures from the statistics collaborator.
	// The already-computed value path and drawdown records stay valid.
	ErrRiskCalculation = errors.New("risk calculation failed")
)

// ConfigurationErrorf wraps ErrConfiguration with a formatted message.
func ConfigurationErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// InsufficientDataErrorf wraps ErrInsufficientData with a formatted message.
func InsufficientDataErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInsufficientData, fmt.Sprintf(format, args...))
}

// InvalidStateErrorf wraps ErrInvalidState with a formatted message.
func InvalidStateErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

// UnsupportedPolicyErrorf wraps ErrUnsupportedPolicy with a formatted message.
func UnsupportedPolicyErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrUnsupportedPolicy, fmt.Sprintf(format, args...))
}

// RiskCalculationError wraps a statistics collaborator failure.
func RiskCalculationError(err error) error {
	return fmt.Errorf("%w: %v", ErrRiskCalculation, err)
}
