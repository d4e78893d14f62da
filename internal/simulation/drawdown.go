package simulation

import "time"

// drawdownTracker is a per-path state machine: AT_PEAK <-> IN_DRAWDOWN.
// A period opens the first step value falls below the running peak (even by
// epsilon) and closes only when value returns to at least that exact peak;
// partial-recovery thresholds are a different policy, not this one.
type drawdownTracker struct {
	peakValue float64
	peakIndex int
	peakTime  time.Time

	inDrawdown  bool
	troughValue float64
	troughIndex int
	troughTime  time.Time

	periods []DrawdownPeriod
}

func newDrawdownTracker(firstValue float64, firstTime time.Time) *drawdownTracker {
	return &drawdownTracker{
		peakValue: firstValue,
		peakTime:  firstTime,
	}
}

// Observe consumes one step of the value path.
func (t *drawdownTracker) Observe(index int, ts time.Time, value float64) {
	if !t.inDrawdown {
		if value >= t.peakValue {
			t.peakValue = value
			t.peakIndex = index
			t.peakTime = ts
			return
		}
		// AT_PEAK -> IN_DRAWDOWN
		t.inDrawdown = true
		t.troughValue = value
		t.troughIndex = index
		t.troughTime = ts
		return
	}

	if value < t.troughValue {
		t.troughValue = value
		t.troughIndex = index
		t.troughTime = ts
	}

	if value >= t.peakValue {
		// IN_DRAWDOWN -> AT_PEAK: full recovery to the pre-drawdown peak
		t.closePeriod(index, ts)
		t.peakValue = value
		t.peakIndex = index
		t.peakTime = ts
	}
}

func (t *drawdownTracker) closePeriod(recoveryIndex int, recoveryTime time.Time) {
	durationToRecovery := recoveryTime.Sub(t.troughTime)
	idx := recoveryIndex
	ts := recoveryTime
	t.periods = append(t.periods, DrawdownPeriod{
		PeakTimestamp:      t.peakTime,
		TroughTimestamp:    t.troughTime,
		RecoveryTimestamp:  &ts,
		PeakIndex:          t.peakIndex,
		TroughIndex:        t.troughIndex,
		RecoveryIndex:      &idx,
		Depth:              (t.troughValue - t.peakValue) / t.peakValue,
		DurationToTrough:   t.troughTime.Sub(t.peakTime),
		DurationToRecovery: &durationToRecovery,
	})
	t.inDrawdown = false
}

// Finalize returns all recorded periods. An episode still open at the end of
// the path is reported unrecovered with nil recovery fields.
func (t *drawdownTracker) Finalize() []DrawdownPeriod {
	if t.inDrawdown {
		t.periods = append(t.periods, DrawdownPeriod{
			PeakTimestamp:    t.peakTime,
			TroughTimestamp:  t.troughTime,
			PeakIndex:        t.peakIndex,
			TroughIndex:      t.troughIndex,
			Depth:            (t.troughValue - t.peakValue) / t.peakValue,
			DurationToTrough: t.troughTime.Sub(t.peakTime),
		})
		t.inDrawdown = false
	}
	if t.periods == nil {
		return []DrawdownPeriod{}
	}
	return t.periods
}
