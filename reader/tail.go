package reader

import "github.com/daqkit/daqrun/signal"

// TailReader keeps the most recent N samples of a signal (and, when built
// withDomain, of its domain) in a circular buffer, continuously refreshed by
// a background drain goroutine so Read reflects the latest data regardless
// of call frequency (§4.9 "Tail reader": "overlap across calls is
// allowed").
type TailReader struct {
	core
	size       int64
	withDomain bool

	valueBuf  []float64
	domainBuf []float64
}

// NewTailReader builds a tail reader with its own input port connected to
// sig and starts its background drain loop.
func NewTailReader(ctx *Context, sig *signal.Signal, valueType, domainType signal.SampleType, size int64, withDomain bool) (*TailReader, error) {
	r := &TailReader{core: newCore(valueType, domainType), size: size, withDomain: withDomain}
	r.port = ctx.newPort("tail", r, false)
	if err := r.port.Connect(sig); err != nil {
		return nil, err
	}
	bootstrapDescriptor(&r.core)
	go r.drainLoop()
	return r, nil
}

func (r *TailReader) drainLoop() {
	for {
		pkt, ok := r.port.Connection().Dequeue()
		if !ok {
			return
		}
		r.mu.Lock()
		switch p := pkt.(type) {
		case *signal.DataPacket:
			if !r.invalid {
				if vs, err := decodeRange(p, r.valueDescriptor, 0, p.SampleCount); err == nil {
					r.valueBuf = pushCapped(r.valueBuf, vs, r.size)
				}
				if r.withDomain && p.Domain != nil {
					if dvs, err := decodeRange(p.Domain, r.domainDescriptor, 0, p.Domain.SampleCount); err == nil {
						r.domainBuf = pushCapped(r.domainBuf, dvs, r.size)
					}
				}
			}
		case *signal.EventPacket:
			if p.EventID == signal.EventDataDescriptorChanged {
				r.handleDescriptorChanged(p)
			}
		}
		r.mu.Unlock()
	}
}

func pushCapped(buf, vs []float64, capacity int64) []float64 {
	buf = append(buf, vs...)
	if int64(len(buf)) > capacity {
		buf = buf[int64(len(buf))-capacity:]
	}
	return buf
}

// Read returns up to n of the most recently retained samples (fewer if
// fewer than n have arrived yet).
func (r *TailReader) Read(n int64) (values, domainValues []float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	values = tailOf(r.valueBuf, n)
	if r.withDomain {
		domainValues = tailOf(r.domainBuf, n)
	}
	return values, domainValues
}

func tailOf(buf []float64, n int64) []float64 {
	if n > int64(len(buf)) || n <= 0 {
		n = int64(len(buf))
	}
	start := int64(len(buf)) - n
	return append([]float64(nil), buf[start:]...)
}

// Close stops the background drain loop by disconnecting the reader's port.
func (r *TailReader) Close() {
	r.port.Disconnect()
}
