package download

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/hayate-dl/hayate/internal/utils"
)

// Run downloads the resource into cfg.OutputPath, resuming from a previous
// partial run when a bitmap record is present. One writer goroutine and one
// getter per connection share a bounded chunk queue; the first error cancels
// every sibling through the group context, so a failed worker stops the
// download without leaving undetected holes.
func Run(ctx context.Context, cfg Config) error {
	if cfg.FileSize <= 0 {
		return errors.New("file size must be known before downloading")
	}
	if cfg.PickURL == nil {
		return errors.New("no URL source configured")
	}
	log := utils.GetLogger("engine")

	connections := clampConnections(cfg.FileSize, cfg.Connections)
	numChunks := uint32(totalChunks(cfg.FileSize))
	store := NewStore(cfg.OutputPath)

	resume := store.Exists()
	var meta *Metadata
	if resume {
		m, err := store.Load(numChunks)
		if err != nil {
			return err
		}
		meta = m
		log.Info().Str("output", cfg.OutputPath).Msg("Resuming interrupted download")
	} else {
		meta = NewMetadata(numChunks)
	}

	queue := make(chan Chunk, queueDepth)
	ranges := partition(cfg.FileSize, connections)
	log.Debug().Int64("fileSize", cfg.FileSize).Int("connections", connections).Uint32("chunks", numChunks).Msg("Starting download")

	g, ctx := errgroup.WithContext(ctx)
	w := &writer{
		queue:      queue,
		outputPath: cfg.OutputPath,
		fileSize:   cfg.FileSize,
		meta:       meta,
		store:      store,
		resume:     resume,
		progress:   cfg.ProgressFunc,
		log:        utils.GetLogger("writer"),
	}
	g.Go(func() error {
		return w.run(ctx)
	})
	for i, rng := range ranges {
		getter := &rangeGetter{
			id:     i,
			url:    cfg.PickURL(),
			rng:    rng,
			meta:   meta,
			resume: resume,
			queue:  queue,
			client: cfg.Client,
			log:    utils.GetLogger("getter").With().Int("worker", i).Logger(),
		}
		g.Go(func() error {
			return getter.run(ctx)
		})
	}
	return g.Wait()
}
