package download

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/hayate-dl/hayate/internal/utils"
)

// rangeGetter streams one contiguous byte range of the resource over a
// single ranged GET. It owns its connection for its whole lifetime and is
// the only producer for its chunk indices.
type rangeGetter struct {
	id     int
	url    string
	rng    byteRange
	meta   *Metadata
	resume bool
	queue  chan<- Chunk
	client utils.HTTPDoer
	log    zerolog.Logger
}

func (g *rangeGetter) run(ctx context.Context) error {
	if g.rng.end < g.rng.start {
		return nil
	}
	start := g.rng.start
	if g.resume {
		next, ok := g.firstPending()
		if !ok {
			g.log.Debug().Msg("Range already complete, nothing to fetch")
			return nil
		}
		start = next
	}
	g.log.Debug().Int64("start", start).Int64("end", g.rng.end).Str("url", g.url).Msg("Downloading range")
	return g.stream(ctx, start)
}

// firstPending returns the offset of the first chunk in the assigned range
// whose bit is still unset. This scan only trims the leading run of finished
// chunks to avoid a wasted partial request; interior gaps are handled by the
// recheck in stream.
func (g *rangeGetter) firstPending() (int64, bool) {
	for offset := g.rng.start; offset <= g.rng.end; offset += utils.ChunkSize {
		if !g.meta.Done(chunkIndex(offset)) {
			return offset, true
		}
	}
	return 0, false
}

func (g *rangeGetter) stream(ctx context.Context, start int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.url, nil)
	if err != nil {
		return fmt.Errorf("creating range request: %w", err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, g.rng.end))
	req.Header.Set("Connection", "keep-alive")
	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("opening range connection to %s: %w", g.url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusPartialContent {
		return fmt.Errorf("unexpected status %d for range %d-%d from %s", resp.StatusCode, start, g.rng.end, g.url)
	}

	for offset := start; offset <= g.rng.end; {
		size := utils.ChunkSize
		if remaining := g.rng.end - offset + 1; remaining < size {
			size = remaining
		}
		if g.resume && g.meta.Done(chunkIndex(offset)) {
			// Already on disk from a previous run: consume and drop.
			if _, err := io.CopyN(io.Discard, resp.Body, size); err != nil {
				return fmt.Errorf("skipping finished chunk at offset %d: %w", offset, err)
			}
			offset += size
			continue
		}
		buf := make([]byte, size)
		if _, err := io.ReadFull(resp.Body, buf); err != nil {
			return fmt.Errorf("reading range %d-%d from %s: %w", start, g.rng.end, g.url, err)
		}
		select {
		case g.queue <- Chunk{Offset: offset, Data: buf}:
		case <-ctx.Done():
			return ctx.Err()
		}
		offset += size
	}
	g.log.Debug().Msg("Finished downloading range")
	return nil
}
