package download

import (
	"io"
	"sync"

	"github.com/RoaringBitmap/roaring"

	"github.com/hayate-dl/hayate/internal/utils"
)

// Metadata records which chunk-sized slots of the output file have been
// durably written. Bit i covers bytes [i*ChunkSize, min((i+1)*ChunkSize,
// fileSize)). Bits only ever go from unset to set: the writer sets them
// after committing a chunk, getters read them to decide what to skip when
// resuming.
type Metadata struct {
	mu        sync.RWMutex
	bits      *roaring.Bitmap
	numChunks uint32
}

func NewMetadata(numChunks uint32) *Metadata {
	return &Metadata{bits: roaring.New(), numChunks: numChunks}
}

func (m *Metadata) Done(index uint32) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bits.Contains(index)
}

func (m *Metadata) MarkDone(index uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bits.Add(index)
}

func (m *Metadata) NumChunks() uint32 {
	return m.numChunks
}

// MaxDone returns the highest marked chunk index, if any bit is set.
func (m *Metadata) MaxDone() (uint32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.bits.IsEmpty() {
		return 0, false
	}
	return m.bits.Maximum(), true
}

func (m *Metadata) Complete() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bits.GetCardinality() == uint64(m.numChunks)
}

// DoneBytes recomputes how many bytes of the file are already on disk. The
// final chunk counts for the tail remainder when fileSize is not chunk
// aligned.
func (m *Metadata) DoneBytes(fileSize int64) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lastChunk := m.numChunks - 1
	lastSize := fileSize % utils.ChunkSize
	if lastSize == 0 {
		lastSize = utils.ChunkSize
	}
	var total int64
	it := m.bits.Iterator()
	for it.HasNext() {
		if it.Next() == lastChunk {
			total += lastSize
		} else {
			total += utils.ChunkSize
		}
	}
	return total
}

// WriteTo and ReadFrom delegate to roaring's portable serialization.

func (m *Metadata) WriteTo(w io.Writer) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bits.WriteTo(w)
}

func (m *Metadata) ReadFrom(r io.Reader) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bits.ReadFrom(r)
}
