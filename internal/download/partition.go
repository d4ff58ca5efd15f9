package download

import "github.com/hayate-dl/hayate/internal/utils"

func totalChunks(fileSize int64) int64 {
	return (fileSize + utils.ChunkSize - 1) / utils.ChunkSize
}

// clampConnections drops to a single connection for files too small to be
// worth splitting, and never hands out more connections than there are
// chunks.
func clampConnections(fileSize int64, connections int) int {
	if connections < 1 || fileSize < utils.MinMultiConnSize {
		return 1
	}
	if total := totalChunks(fileSize); int64(connections) > total {
		return int(total)
	}
	return connections
}

// partition splits [0, fileSize) into one contiguous byte range per
// connection, aligned to chunk boundaries. Integer division leaves the
// remainder with the last range.
func partition(fileSize int64, connections int) []byteRange {
	chunksPerConn := totalChunks(fileSize) / int64(connections)
	ranges := make([]byteRange, connections)
	for i := range ranges {
		ranges[i] = byteRange{
			start: int64(i) * chunksPerConn * utils.ChunkSize,
			end:   (int64(i)+1)*chunksPerConn*utils.ChunkSize - 1,
		}
	}
	ranges[connections-1].end = fileSize - 1
	return ranges
}
