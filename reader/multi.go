package reader

import (
	"time"

	"github.com/daqkit/daqrun/internal/daqerr"
	"github.com/daqkit/daqrun/signal"
)

// MultiReaderConfig holds the alignment policy knobs described in §4.9
// "Multi reader".
type MultiReaderConfig struct {
	RequireCommonRate       bool
	StartOnFullUnitOfDomain bool
	DomainTickDenominator   int64
}

// MultiReader aligns reads across signals that share a comparable domain
// origin: at the start of every read it computes a common domain value no
// earlier than any input's next available sample, then drops, on each input,
// the leading samples whose domain value precedes it (§4.9 "Multi reader", §8
// invariant 8).
type MultiReader struct {
	readers []*StreamReader
	cfg     MultiReaderConfig
}

// NewMultiReader builds one stream reader per signal, all with the same
// fixed read types and timeout policy.
func NewMultiReader(ctx *Context, sigs []*signal.Signal, valueType, domainType signal.SampleType, policy TimeoutPolicy, cfg MultiReaderConfig) (*MultiReader, error) {
	if len(sigs) == 0 {
		return nil, daqerr.New(daqerr.InvalidParameter, "multi reader requires at least one signal")
	}
	m := &MultiReader{cfg: cfg}
	for _, sig := range sigs {
		sr, err := NewStreamReader(ctx, sig, valueType, domainType, policy)
		if err != nil {
			return nil, err
		}
		m.readers = append(m.readers, sr)
	}
	return m, nil
}

// Read pulls up to count samples from every input and returns equal-length,
// domain-aligned value slices (one per input) plus the shared aligned
// domain. Inputs that returned fewer aligned samples than others cap the
// result for all of them, so every returned tuple lines up across inputs.
func (m *MultiReader) Read(count int64, timeoutMs int64) (values [][]float64, domainValues []float64, statuses []Status, err error) {
	if m.cfg.RequireCommonRate {
		if rerr := m.checkCommonRate(); rerr != nil {
			return nil, nil, nil, rerr
		}
	}

	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	domains := make([][]float64, len(m.readers))
	values = make([][]float64, len(m.readers))
	statuses = make([]Status, len(m.readers))

	for i, r := range m.readers {
		remainingMs := int64(0)
		if remaining := time.Until(deadline); remaining > 0 {
			remainingMs = remaining.Milliseconds()
		}
		vs, ds, st, rerr := r.ReadWithDomain(count, remainingMs)
		values[i] = vs
		domains[i] = ds
		statuses[i] = st
		if rerr != nil {
			err = rerr
		}
	}
	if err != nil {
		return values, nil, statuses, err
	}

	commonStart, haveStart := 0.0, false
	for _, d := range domains {
		if len(d) == 0 {
			continue
		}
		if !haveStart || d[0] > commonStart {
			commonStart, haveStart = d[0], true
		}
	}
	if m.cfg.StartOnFullUnitOfDomain && m.cfg.DomainTickDenominator > 0 && haveStart {
		commonStart = ceilToMultiple(commonStart, float64(m.cfg.DomainTickDenominator))
	}

	minLen := -1
	for i, d := range domains {
		drop := 0
		for drop < len(d) && d[drop] < commonStart {
			drop++
		}
		domains[i] = d[drop:]
		if drop <= len(values[i]) {
			values[i] = values[i][drop:]
		} else {
			values[i] = nil
		}
		if minLen == -1 || len(values[i]) < minLen {
			minLen = len(values[i])
		}
	}
	if minLen < 0 {
		minLen = 0
	}
	for i := range values {
		if len(values[i]) > minLen {
			values[i] = values[i][:minLen]
		}
	}
	if len(domains) > 0 && len(domains[0]) >= minLen {
		domainValues = domains[0][:minLen]
	}

	return values, domainValues, statuses, nil
}

func ceilToMultiple(v, step float64) float64 {
	if step <= 0 {
		return v
	}
	q := v / step
	qi := float64(int64(q))
	if qi < q {
		qi++
	}
	return qi * step
}

// checkCommonRate fails with InvalidState if any two inputs' linear domain
// deltas disagree (§4.9 "A common sample rate can be required").
func (m *MultiReader) checkCommonRate() error {
	var delta int64
	have := false
	for _, r := range m.readers {
		r.mu.Lock()
		d := r.domainDescriptor
		r.mu.Unlock()
		if d == nil || d.Rule.Type != signal.RuleLinear {
			continue
		}
		if !have {
			delta, have = d.Rule.LinearDelta, true
			continue
		}
		if d.Rule.LinearDelta != delta {
			return daqerr.New(daqerr.InvalidState, "multi reader inputs disagree on linear domain delta")
		}
	}
	return nil
}

// MarkAsInvalid invalidates every underlying per-input reader.
func (m *MultiReader) MarkAsInvalid() {
	for _, r := range m.readers {
		r.core.MarkAsInvalid()
	}
}
