package reader

import (
	"context"
	"time"

	"github.com/daqkit/daqrun/internal/daqerr"
	"github.com/daqkit/daqrun/internal/telemetry"
	"github.com/daqkit/daqrun/signal"
)

// TimeoutPolicy controls how a bounded read waits for more samples (§4.9).
type TimeoutPolicy int

const (
	// TimeoutAll blocks up to the full timeout while samples remain to read.
	TimeoutAll TimeoutPolicy = iota
	// TimeoutAny returns as soon as at least one sample has been read,
	// provided no more is already available without waiting.
	TimeoutAny
)

// StreamReader dequeues packets from a single input port until count
// samples have been copied or the timeout expires (§4.9 "Stream reader").
// Value and domain reads share a read position.
type StreamReader struct {
	core
	policy TimeoutPolicy

	pendingData  *signal.DataPacket
	pendingIndex int64
}

// NewStreamReader builds a reader with its own input port connected to sig.
// valueType/domainType of SampleUndefined infer from sig's current
// descriptor.
func NewStreamReader(ctx *Context, sig *signal.Signal, valueType, domainType signal.SampleType, policy TimeoutPolicy) (*StreamReader, error) {
	r := &StreamReader{core: newCore(valueType, domainType), policy: policy}
	r.port = ctx.newPort("stream", r, false)
	if err := r.port.Connect(sig); err != nil {
		return nil, err
	}
	bootstrapDescriptor(&r.core)
	return r, nil
}

// Read copies up to count value samples into a freshly allocated slice.
func (r *StreamReader) Read(count int64, timeoutMs int64) ([]float64, Status, error) {
	values, _, status, err := r.read(count, timeoutMs, false)
	return values, status, err
}

// ReadWithDomain fills both value and domain buffers symmetrically (§4.9
// "readWithDomain fills both buffers symmetrically").
func (r *StreamReader) ReadWithDomain(count int64, timeoutMs int64) (values, domainValues []float64, status Status, err error) {
	return r.read(count, timeoutMs, true)
}

// read is the poll loop every exported Read variant funnels through; it is
// timed as one unit of work per call regardless of how many DequeueTimeout
// iterations it takes internally (§4.9 "Stream reader").
func (r *StreamReader) read(count int64, timeoutMs int64, withDomain bool) (values, domainValues []float64, status Status, err error) {
	rec := telemetry.NewRecorder(r.port.GlobalID(), "reader")
	err = telemetry.Timed(context.Background(), rec, "read", func() error {
		values, domainValues, status, err = r.readLocked(count, timeoutMs, withDomain)
		return err
	})
	return
}

func (r *StreamReader) readLocked(count int64, timeoutMs int64, withDomain bool) (values, domainValues []float64, status Status, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.invalid {
		return nil, nil, Status{}, daqerr.New(daqerr.Ignored, "reader is invalid")
	}

	remaining := count
	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)

	consumePending := func() error {
		if r.pendingData == nil || remaining == 0 {
			return nil
		}
		avail := r.pendingData.SampleCount - r.pendingIndex
		toRead := remaining
		if toRead > avail {
			toRead = avail
		}
		vs, derr := decodeRange(r.pendingData, r.valueDescriptor, r.pendingIndex, toRead)
		if derr != nil {
			return derr
		}
		values = append(values, vs...)
		if withDomain {
			dp := r.pendingData.Domain
			if dp == nil {
				return daqerr.New(daqerr.InvalidState, "packet has no associated domain packet")
			}
			dvs, derr := decodeRange(dp, r.domainDescriptor, r.pendingIndex, toRead)
			if derr != nil {
				return derr
			}
			domainValues = append(domainValues, dvs...)
		}
		r.pendingIndex += toRead
		remaining -= toRead
		if r.pendingIndex >= r.pendingData.SampleCount {
			r.pendingData = nil
			r.pendingIndex = 0
		}
		return nil
	}

	if err = consumePending(); err != nil {
		return values, domainValues, Status{Valid: !r.invalid}, err
	}

	firstRead := len(values) > 0

	for remaining > 0 {
		var timeout time.Duration
		if timeoutMs > 0 && !(r.policy == TimeoutAny && firstRead) {
			timeout = time.Until(deadline)
			if timeout < 0 {
				timeout = 0
			}
		}

		pkt, ok := r.port.Connection().DequeueTimeout(timeout)
		if !ok {
			break
		}

		switch p := pkt.(type) {
		case *signal.DataPacket:
			r.pendingData = p
			r.pendingIndex = 0
			if err = consumePending(); err != nil {
				return values, domainValues, Status{Valid: !r.invalid}, err
			}
			if len(values) > 0 {
				firstRead = true
			}
		case *signal.EventPacket:
			if p.EventID == signal.EventDataDescriptorChanged {
				r.handleDescriptorChanged(p)
				return values, domainValues, Status{
					Valid:               !r.invalid,
					DescriptorChanged:   true,
					NewValueDescriptor:  p.NewValueDescriptor,
					NewDomainDescriptor: p.NewDomainDescriptor,
				}, nil
			}
		}
	}

	return values, domainValues, Status{Valid: !r.invalid}, nil
}
