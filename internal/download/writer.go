package download

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// writer is the single consumer of the chunk queue. It commits each chunk at
// its exact offset, flips the chunk's bit, and persists the bitmap after
// every chunk so any stop point is resumable. Chunks from different getters
// arrive interleaved; the embedded offset alone decides placement.
type writer struct {
	queue      <-chan Chunk
	outputPath string
	fileSize   int64
	meta       *Metadata
	store      *Store
	resume     bool
	progress   func(downloaded, total int64)
	log        zerolog.Logger
}

func (w *writer) run(ctx context.Context) error {
	flag := os.O_RDWR | os.O_CREATE
	if !w.resume {
		// A fresh download starts from an empty file even when a completed
		// one with the same name is sitting there.
		flag |= os.O_TRUNC
	}
	f, err := os.OpenFile(w.outputPath, flag, 0644)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer f.Close()

	downloaded := w.meta.DoneBytes(w.fileSize)
	lastPercent := percent(downloaded, w.fileSize)
	w.notify(downloaded)

	for downloaded < w.fileSize {
		var chunk Chunk
		select {
		case chunk = <-w.queue:
		case <-ctx.Done():
			return ctx.Err()
		}
		if _, err := f.WriteAt(chunk.Data, chunk.Offset); err != nil {
			return fmt.Errorf("writing chunk at offset %d: %w", chunk.Offset, err)
		}
		w.meta.MarkDone(chunkIndex(chunk.Offset))
		if err := w.store.Save(w.meta); err != nil {
			return err
		}
		downloaded += int64(len(chunk.Data))
		if p := percent(downloaded, w.fileSize); p != lastPercent {
			lastPercent = p
			w.notify(downloaded)
		}
	}

	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing output file: %w", err)
	}
	if !w.meta.Complete() {
		return errors.New("byte count reached file size but bitmap is incomplete")
	}
	// Removing the record is the durable completion signal; a finished file
	// must not be left looking resumable.
	if err := w.store.Delete(); err != nil {
		return fmt.Errorf("removing metadata record: %w", err)
	}
	w.log.Debug().Int64("bytes", downloaded).Msg("All chunks committed")
	return nil
}

func (w *writer) notify(downloaded int64) {
	if w.progress != nil {
		w.progress(downloaded, w.fileSize)
	}
}

func percent(downloaded, total int64) int {
	if total <= 0 {
		return 100
	}
	return int(downloaded * 100 / total)
}
