package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeights_Validate(t *testing.T) {
	tests := []struct {
		name    string
		weights Weights
		wantErr bool
	}{
		{"valid pair", Weights{"AAA": 0.6, "BBB": 0.4}, false},
		{"single asset", Weights{"AAA": 1.0}, false},
		{"within tolerance", Weights{"AAA": 0.5, "BBB": 0.5 + 5e-7}, false},
		{"empty", Weights{}, true},
		{"sum below one", Weights{"AAA": 0.5, "BBB": 0.4}, true},
		{"sum above one", Weights{"AAA": 0.7, "BBB": 0.4}, true},
		{"negative weight", Weights{"AAA": 1.2, "BBB": -0.2}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.weights.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrConfiguration), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWeights_SymbolsSorted(t *testing.T) {
	w := Weights{"ZZZ": 0.2, "AAA": 0.5, "MMM": 0.3}
	assert.Equal(t, []string{"AAA", "MMM", "ZZZ"}, w.Symbols())
}

func TestPricePath_Validate(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ts := func(days ...int) []time.Time {
		out := make([]time.Time, len(days))
		for i, d := range days {
			out[i] = start.AddDate(0, 0, d)
		}
		return out
	}

	tests := []struct {
		name    string
		path    PricePath
		wantErr error
	}{
		{
			name: "valid",
			path: PricePath{Timestamps: ts(0, 1, 2), Prices: map[string][]float64{"AAA": {1, 2, 3}}},
		},
		{
			name:    "empty",
			path:    PricePath{},
			wantErr: ErrInsufficientData,
		},
		{
			name:    "duplicate timestamp",
			path:    PricePath{Timestamps: ts(0, 1, 1), Prices: map[string][]float64{"AAA": {1, 2, 3}}},
			wantErr: ErrConfiguration,
		},
		{
			name:    "misaligned series",
			path:    PricePath{Timestamps: ts(0, 1, 2), Prices: map[string][]float64{"AAA": {1, 2}}},
			wantErr: ErrConfiguration,
		},
		{
			name:    "non-positive price",
			path:    PricePath{Timestamps: ts(0, 1), Prices: map[string][]float64{"AAA": {1, 0}}},
			wantErr: ErrConfiguration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.path.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			}
		})
	}
}

func TestPricePath_HasSymbols(t *testing.T) {
	path := PricePath{Prices: map[string][]float64{"AAA": {1}, "BBB": {2}}}

	_, ok := path.HasSymbols([]string{"AAA", "BBB"})
	assert.True(t, ok)

	missing, ok := path.HasSymbols([]string{"AAA", "CCC"})
	assert.False(t, ok)
	assert.Equal(t, "CCC", missing)
}

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		err  error
		want error
	}{
		{ConfigurationErrorf("weights sum to %.2f", 0.9), ErrConfiguration},
		{InsufficientDataErrorf("%d observations", 3), ErrInsufficientData},
		{InvalidStateErrorf("value %.2f", -1.0), ErrInvalidState},
		{UnsupportedPolicyErrorf("type %q", "x"), ErrUnsupportedPolicy},
		{RiskCalculationError(errors.New("singular")), ErrRiskCalculation},
	}

	for _, tt := range tests {
		assert.True(t, errors.Is(tt.err, tt.want), "%v is not %v", tt.err, tt.want)
		assert.NotEmpty(t, tt.err.Error())
	}
}
