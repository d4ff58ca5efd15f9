package download

import "github.com/hayate-dl/hayate/internal/utils"

// Chunk is the unit of transfer: a slice of the remote resource tagged with
// its absolute offset in the output file. Ownership moves from the getter
// that read it to the writer that commits it; neither touches it afterwards.
type Chunk struct {
	Offset int64
	Data   []byte
}

// queueDepth bounds the chunk queue so getters outpacing the writer block
// instead of buffering the whole file in memory.
const queueDepth = 64

// Config carries everything the engine needs. The launcher resolves mirror
// selection, output naming, and the HEAD probe before the engine starts.
type Config struct {
	OutputPath   string
	FileSize     int64
	Connections  int
	PickURL      func() string // mirror selection, decided by the caller
	Client       utils.HTTPDoer
	ProgressFunc func(downloaded, total int64)
}

type byteRange struct {
	start int64
	end   int64 // inclusive
}

func chunkIndex(offset int64) uint32 {
	return uint32(offset / utils.ChunkSize)
}
