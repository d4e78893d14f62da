// Package batch runs independent what-if scenario simulations in parallel.
// Each run owns its portfolio state, seed and output buffers; no shared
// mutable state crosses run boundaries. A batch may be cancelled between
// runs only - a single run always completes once started.
package batch

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/backtest/internal/domain"
	"github.com/aristath/backtest/internal/simulation"
)

// Scenario is one independent what-if run: a configuration against a price
// path. Scenarios in a batch may share the same path value; the engine only
// reads it.
type Scenario struct {
	Name   string
	Config simulation.Config
	Path   domain.PricePath
}

// RunResult pairs a scenario with its outcome. Err is non-nil for fail-fast
// rejections, mid-run aborts (Result then holds the partial path) and runs
// skipped by cancellation.
type RunResult struct {
	ID     string             `json:"id"`
	Name   string             `json:"name"`
	Result *simulation.Result `json:"result,omitempty"`
	Err    error              `json:"-"`
	Error  string             `json:"error,omitempty"`
}

// Runner manages a pool of worker goroutines for parallel scenario runs.
type Runner struct {
	numWorkers int
	stats      simulation.StatisticsProvider
	log        zerolog.Logger
}

// NewRunner creates a new batch runner with the specified number of workers
func NewRunner(numWorkers int, stats simulation.StatisticsProvider, log zerolog.Logger) *Runner {
	if numWorkers <= 0 {
		numWorkers = 8
	}
	return &Runner{
		numWorkers: numWorkers,
		stats:      stats,
		log:        log.With().Str("component", "batch").Logger(),
	}
}

type jobItem struct {
	index    int
	scenario Scenario
}

type resultItem struct {
	index  int
	result RunResult
}

// Run executes all scenarios and returns results in input order. When ctx is
// cancelled, runs not yet started are skipped and reported with ctx's error;
// runs already in flight complete normally.
func (r *Runner) Run(ctx context.Context, scenarios []Scenario) []RunResult {
	numScenarios := len(scenarios)
	if numScenarios == 0 {
		return []RunResult{}
	}

	jobs := make(chan jobItem, numScenarios)
	results := make(chan resultItem, numScenarios)

	numWorkers := r.numWorkers
	if numScenarios < numWorkers {
		numWorkers = numScenarios
	}

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.worker(ctx, jobs, results)
		}()
	}

	for idx, scenario := range scenarios {
		jobs <- jobItem{index: idx, scenario: scenario}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	ordered := make([]RunResult, numScenarios)
	for item := range results {
		ordered[item.index] = item.result
	}

	r.log.Info().
		Int("scenarios", numScenarios).
		Msg("Scenario batch finished")

	return ordered
}

// worker processes jobs until the channel drains. Each worker owns its own
// engine; cancellation is checked before each run, never mid-run.
func (r *Runner) worker(ctx context.Context, jobs <-chan jobItem, results chan<- resultItem) {
	engine := simulation.NewEngine(r.stats, r.log)

	for job := range jobs {
		runID := uuid.New().String()

		if err := ctx.Err(); err != nil {
			results <- resultItem{
				index:  job.index,
				result: RunResult{ID: runID, Name: job.scenario.Name, Err: err, Error: err.Error()},
			}
			continue
		}

		result, err := engine.Run(job.scenario.Config, job.scenario.Path)
		if err != nil {
			r.log.Warn().
				Err(err).
				Str("scenario", job.scenario.Name).
				Str("run_id", runID).
				Msg("Scenario run failed")
		}

		runResult := RunResult{ID: runID, Name: job.scenario.Name, Result: result, Err: err}
		if err != nil {
			runResult.Error = err.Error()
		}
		results <- resultItem{index: job.index, result: runResult}
	}
}
