package sharing

import (
	"bytes"
	"fmt"
)

// Split cuts payload into chunks of at most chunkSize bytes, preserving
// order. An empty payload yields no chunks.
func Split(payload []byte, chunkSize int) [][]byte {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if len(payload) == 0 {
		return nil
	}
	chunks := make([][]byte, 0, (len(payload)+chunkSize-1)/chunkSize)
	for start := 0; start < len(payload); start += chunkSize {
		end := start + chunkSize
		if end > len(payload) {
			end = len(payload)
		}
		chunks = append(chunks, payload[start:end])
	}
	return chunks
}

// Assembler accumulates chunks by sequence index, tolerating out-of-order
// and duplicate arrivals (latest-value reads re-deliver chunks). Bytes
// fails closed if any index is missing.
type Assembler struct {
	total    int
	chunks   [][]byte
	received int
}

// NewAssembler prepares to receive total chunks.
func NewAssembler(total int) (*Assembler, error) {
	if total < 0 {
		return nil, fmt.Errorf("invalid chunk total %d", total)
	}
	return &Assembler{total: total, chunks: make([][]byte, total)}, nil
}

// Add records the chunk at index. Duplicates (same index) are ignored;
// out-of-range indices are rejected.
func (a *Assembler) Add(index int, data []byte) error {
	if index < 0 || index >= a.total {
		return fmt.Errorf("chunk index %d out of range [0, %d)", index, a.total)
	}
	if a.chunks[index] != nil {
		return nil
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	a.chunks[index] = buf
	a.received++
	return nil
}

// Received reports how many distinct chunks have arrived.
func (a *Assembler) Received() int { return a.received }

// Complete reports whether every index has arrived.
func (a *Assembler) Complete() bool { return a.received == a.total }

// Missing lists indices not yet received.
func (a *Assembler) Missing() []int {
	var missing []int
	for i, c := range a.chunks {
		if c == nil {
			missing = append(missing, i)
		}
	}
	return missing
}

// Bytes reassembles the payload by strict index order. Any gap returns
// ErrIncompleteTransfer; silent truncation is never acceptable.
func (a *Assembler) Bytes() ([]byte, error) {
	if !a.Complete() {
		return nil, fmt.Errorf("%w: %d of %d received", ErrIncompleteTransfer, a.received, a.total)
	}
	var buf bytes.Buffer
	for _, c := range a.chunks {
		buf.Write(c)
	}
	return buf.Bytes(), nil
}
