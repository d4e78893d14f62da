package simulation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/backtest/internal/domain"
)

func TestNewPolicy_IntervalSteps(t *testing.T) {
	tests := []struct {
		name         string
		interval     PolicyInterval
		stepsPerYear int
		firesAtStep  int
		quietAtStep  int
	}{
		{"monthly daily steps", IntervalMonthly, 252, 21, 20},
		{"quarterly daily steps", IntervalQuarterly, 252, 63, 62},
		{"yearly daily steps", IntervalYearly, 252, 252, 251},
		{"monthly monthly steps", IntervalMonthly, 12, 1, 0},
		// floor would be zero; clamped to every step
		{"monthly quarterly steps", IntervalMonthly, 4, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy, err := NewPolicy(PolicySpec{Type: PolicyPeriodic, Interval: tt.interval}, tt.stepsPerYear)
			require.NoError(t, err)

			if tt.quietAtStep > 0 {
				assert.False(t, policy.Evaluate(tt.quietAtStep, 0))
			}
			assert.True(t, policy.Evaluate(tt.firesAtStep, 0))
		})
	}
}

func TestPolicy_StateMachine(t *testing.T) {
	policy, err := NewPolicy(PolicySpec{Type: PolicyPeriodic, Interval: IntervalMonthly}, 12)
	require.NoError(t, err)

	assert.Equal(t, StateNotDue, policy.State())

	require.True(t, policy.Evaluate(1, 0))
	assert.Equal(t, StateDue, policy.State())

	// DUE is sticky until execution completes
	require.True(t, policy.Evaluate(1, 0))
	assert.Equal(t, StateDue, policy.State())

	policy.MarkExecuting()
	assert.Equal(t, StateExecuting, policy.State())

	policy.MarkComplete(1)
	assert.Equal(t, StateNotDue, policy.State())

	// the completed step is the new boundary
	assert.True(t, policy.Evaluate(2, 0))
}

func TestThresholdPolicy_MaxDriftTrigger(t *testing.T) {
	policy, err := NewPolicy(PolicySpec{Type: PolicyThreshold, DriftLimit: 0.05}, 252)
	require.NoError(t, err)

	assert.False(t, policy.Evaluate(1, 0.05), "drift at the limit must not fire")
	assert.True(t, policy.Evaluate(2, 0.050001))
	assert.Equal(t, TriggerThreshold, policy.Reason())

	policy.MarkExecuting()
	policy.MarkComplete(2)
	assert.False(t, policy.Evaluate(3, 0.01))
}

func TestNonePolicy_NeverFires(t *testing.T) {
	policy, err := NewPolicy(PolicySpec{Type: PolicyNone}, 252)
	require.NoError(t, err)

	for step := 1; step < 1000; step++ {
		assert.False(t, policy.Evaluate(step, 0.99))
	}
	assert.Equal(t, StateNotDue, policy.State())
}

func TestNewPolicy_EmptyTypeDefaultsToNone(t *testing.T) {
	policy, err := NewPolicy(PolicySpec{}, 252)
	require.NoError(t, err)
	assert.False(t, policy.Evaluate(100, 1.0))
}

func TestNewPolicy_Errors(t *testing.T) {
	tests := []struct {
		name    string
		spec    PolicySpec
		wantErr error
	}{
		{"unknown type", PolicySpec{Type: "weekly"}, domain.ErrUnsupportedPolicy},
		{"unknown interval", PolicySpec{Type: PolicyPeriodic, Interval: "fortnightly"}, domain.ErrUnsupportedPolicy},
		{"negative drift limit", PolicySpec{Type: PolicyThreshold, DriftLimit: -0.01}, domain.ErrConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPolicy(tt.spec, 252)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}
