// Package scenario loads what-if scenario batch definitions from YAML files
// and resolves their price source into runnable batch scenarios.
package scenario

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aristath/backtest/internal/batch"
	"github.com/aristath/backtest/internal/domain"
	"github.com/aristath/backtest/internal/marketdata"
	"github.com/aristath/backtest/internal/simulation"
)

// Price source names for PriceSpec.Source.
const (
	SourceHistory   = "history"
	SourceSynthetic = "synthetic"
	SourceInline    = "inline"
)

// PriceSpec selects where the shared price path for a batch comes from.
type PriceSpec struct {
	Source string `json:"source" yaml:"source"`

	// history source
	Symbols []string `json:"symbols,omitempty" yaml:"symbols,omitempty"`
	Start   string   `json:"start,omitempty" yaml:"start,omitempty"` // YYYY-MM-DD
	End     string   `json:"end,omitempty" yaml:"end,omitempty"`

	// synthetic source; Seed is explicit and per-batch, never process-wide
	Synthetic *marketdata.SyntheticSpec `json:"synthetic,omitempty" yaml:"synthetic,omitempty"`
	Seed      int64                     `json:"seed,omitempty" yaml:"seed,omitempty"`

	// inline source
	Inline *domain.PricePath `json:"inline,omitempty" yaml:"inline,omitempty"`
}

// Spec is one named scenario configuration.
type Spec struct {
	Name              string `json:"name" yaml:"name"`
	simulation.Config `yaml:",inline"`
}

// File is a complete scenario batch definition.
type File struct {
	Prices    PriceSpec `json:"prices" yaml:"prices"`
	Scenarios []Spec    `json:"scenarios" yaml:"scenarios"`
}

// Load parses a scenario file from disk.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return Parse(data)
}

// Parse parses a scenario file from raw YAML.
func Parse(data []byte) (*File, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse scenario file: %w", err)
	}
	return validate(&file)
}

// ParseJSON parses a scenario file from a JSON stream, as submitted to the
// batch API endpoint.
func ParseJSON(r io.Reader) (*File, error) {
	var file File
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse scenario request: %w", err)
	}
	return validate(&file)
}

func validate(file *File) (*File, error) {
	if len(file.Scenarios) == 0 {
		return nil, domain.ConfigurationErrorf("scenario file defines no scenarios")
	}
	seen := make(map[string]bool, len(file.Scenarios))
	for i, spec := range file.Scenarios {
		if spec.Name == "" {
			return nil, domain.ConfigurationErrorf("scenario %d has no name", i)
		}
		if seen[spec.Name] {
			return nil, domain.ConfigurationErrorf("duplicate scenario name %q", spec.Name)
		}
		seen[spec.Name] = true
	}
	return file, nil
}

// Resolve materializes the price path and builds the batch scenarios. The
// provider is only consulted for the history source and may be nil otherwise.
func (f *File) Resolve(provider marketdata.Provider, minObservations int) ([]batch.Scenario, error) {
	path, err := f.resolvePath(provider, minObservations)
	if err != nil {
		return nil, err
	}

	scenarios := make([]batch.Scenario, 0, len(f.Scenarios))
	for _, spec := range f.Scenarios {
		scenarios = append(scenarios, batch.Scenario{
			Name:   spec.Name,
			Config: spec.Config,
			Path:   path,
		})
	}
	return scenarios, nil
}

func (f *File) resolvePath(provider marketdata.Provider, minObservations int) (domain.PricePath, error) {
	switch f.Prices.Source {
	case SourceHistory:
		if provider == nil {
			return domain.PricePath{}, domain.ConfigurationErrorf("history price source requires a market data provider")
		}
		if len(f.Prices.Symbols) == 0 {
			return domain.PricePath{}, domain.ConfigurationErrorf("history price source requires symbols")
		}
		start, err := parseDate(f.Prices.Start, "start")
		if err != nil {
			return domain.PricePath{}, err
		}
		end, err := parseDate(f.Prices.End, "end")
		if err != nil {
			return domain.PricePath{}, err
		}
		return provider.GetPricePath(f.Prices.Symbols, start, end, minObservations)

	case SourceSynthetic:
		if f.Prices.Synthetic == nil {
			return domain.PricePath{}, domain.ConfigurationErrorf("synthetic price source requires a synthetic spec")
		}
		return marketdata.GeneratePath(*f.Prices.Synthetic, f.Prices.Seed)

	case SourceInline:
		if f.Prices.Inline == nil {
			return domain.PricePath{}, domain.ConfigurationErrorf("inline price source requires a price path")
		}
		return *f.Prices.Inline, nil

	default:
		return domain.PricePath{}, domain.ConfigurationErrorf("unknown price source %q", f.Prices.Source)
	}
}

func parseDate(value, field string) (time.Time, error) {
	if value == "" {
		return time.Time{}, domain.ConfigurationErrorf("history price source requires a %s date", field)
	}
	ts, err := time.ParseInLocation("2006-01-02", value, time.UTC)
	if err != nil {
		return time.Time{}, domain.ConfigurationErrorf("invalid %s date %q: %v", field, value, err)
	}
	return ts, nil
}
