package reader

import "github.com/daqkit/daqrun/signal"

// Block is one fixed-size block of aligned value (and, when the reader was
// built withDomain, domain) samples.
type Block struct {
	Values  []float64
	Domain  []float64
}

// BlockReader reads whole blocks of a fixed size; a partial block is never
// returned, instead staying buffered until enough samples arrive to
// complete it (§4.9 "Block reader").
type BlockReader struct {
	*StreamReader
	blockSize  int64
	withDomain bool

	valueBuf  []float64
	domainBuf []float64
}

// NewBlockReader builds a block reader over its own input port connected to
// sig. withDomain additionally buffers and emits aligned domain samples per
// block.
func NewBlockReader(ctx *Context, sig *signal.Signal, valueType, domainType signal.SampleType, blockSize int64, withDomain bool, policy TimeoutPolicy) (*BlockReader, error) {
	sr, err := NewStreamReader(ctx, sig, valueType, domainType, policy)
	if err != nil {
		return nil, err
	}
	return &BlockReader{StreamReader: sr, blockSize: blockSize, withDomain: withDomain}, nil
}

// ReadBlocks returns every whole block available within timeoutMs, up to
// maxBlocks, leaving any incomplete remainder buffered for the next call.
// consumed is the number of value samples drained from the connection to
// produce the emitted blocks (§4.9 "status reports how many samples were
// consumed").
func (r *BlockReader) ReadBlocks(maxBlocks int64, timeoutMs int64) (blocks []Block, status Status, consumed int64, err error) {
	r.mu.Lock()
	want := maxBlocks*r.blockSize - int64(len(r.valueBuf))
	r.mu.Unlock()
	if want < 0 {
		want = 0
	}

	var vals, domVals []float64
	if r.withDomain {
		vals, domVals, status, err = r.StreamReader.ReadWithDomain(want, timeoutMs)
	} else {
		vals, status, err = r.StreamReader.Read(want, timeoutMs)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.valueBuf = append(r.valueBuf, vals...)
	if r.withDomain {
		r.domainBuf = append(r.domainBuf, domVals...)
	}

	for int64(len(r.valueBuf)) >= r.blockSize && int64(len(blocks)) < maxBlocks {
		b := Block{Values: append([]float64(nil), r.valueBuf[:r.blockSize]...)}
		r.valueBuf = r.valueBuf[r.blockSize:]
		if r.withDomain {
			b.Domain = append([]float64(nil), r.domainBuf[:r.blockSize]...)
			r.domainBuf = r.domainBuf[r.blockSize:]
		}
		blocks = append(blocks, b)
		consumed += r.blockSize
	}
	return blocks, status, consumed, err
}
