package reader

import (
	"context"
	"time"

	"github.com/daqkit/daqrun/internal/daqerr"
	"github.com/daqkit/daqrun/internal/telemetry"
	"github.com/daqkit/daqrun/signal"
)

// PacketReader returns packets exactly as emitted, with no type conversion
// or buffering beyond the connection's own FIFO; used by re-publishers that
// forward packets onto another signal unchanged (§4.9 "Packet reader").
type PacketReader struct {
	core
}

// NewPacketReader builds a packet reader with its own input port connected
// to sig.
func NewPacketReader(ctx *Context, sig *signal.Signal, gapDetection bool) (*PacketReader, error) {
	r := &PacketReader{core: newCore(signal.SampleUndefined, signal.SampleUndefined)}
	r.port = ctx.newPort("packet", r, gapDetection)
	if err := r.port.Connect(sig); err != nil {
		return nil, err
	}
	return r, nil
}

// Read dequeues up to count packets, blocking up to timeoutMs for the first
// one and returning immediately with whatever else is already queued.
func (r *PacketReader) Read(count int64, timeoutMs int64) ([]signal.Packet, error) {
	rec := telemetry.NewRecorder(r.port.GlobalID(), "reader")
	var out []signal.Packet
	err := telemetry.Timed(context.Background(), rec, "read", func() error {
		var rerr error
		out, rerr = r.readLocked(count, timeoutMs)
		return rerr
	})
	return out, err
}

func (r *PacketReader) readLocked(count int64, timeoutMs int64) ([]signal.Packet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.invalid {
		return nil, daqerr.New(daqerr.Ignored, "reader is invalid")
	}

	var out []signal.Packet
	timeout := time.Duration(timeoutMs) * time.Millisecond
	for int64(len(out)) < count {
		pkt, ok := r.port.Connection().DequeueTimeout(timeout)
		if !ok {
			break
		}
		if ep, ok := pkt.(*signal.EventPacket); ok && ep.EventID == signal.EventDataDescriptorChanged {
			r.handleDescriptorChanged(ep)
		}
		out = append(out, pkt)
		timeout = 0 // only the first dequeue waits; the rest drain whatever's already queued
	}
	return out, nil
}
