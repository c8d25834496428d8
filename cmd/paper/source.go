package main

import (
	"context"

	"github.com/rs/zerolog"

	"tradebot-go/internal/market"
	"tradebot-go/internal/repository"
)

const persistBatch = 64

// recordingSource passes bars through while persisting them to the bar store
// in batches, so live sessions build up replayable history.
type recordingSource struct {
	inner interface {
		Run(ctx context.Context, out chan<- market.Bar) error
	}
	store *repository.Store
	log   zerolog.Logger

	buf []market.Bar
}

func (s *recordingSource) Run(ctx context.Context, out chan<- market.Bar) error {
	inner := make(chan market.Bar, 256)
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.inner.Run(ctx, inner)
		close(inner)
	}()

	for bar := range inner {
		s.buf = append(s.buf, bar)
		if len(s.buf) >= persistBatch {
			s.flush(ctx)
		}
		select {
		case out <- bar:
		case <-ctx.Done():
		}
	}
	s.flush(context.Background())
	return <-errCh
}

func (s *recordingSource) flush(ctx context.Context) {
	if len(s.buf) == 0 {
		return
	}
	if err := s.store.SaveBars(ctx, s.buf); err != nil {
		s.log.Warn().Err(err).Int("bars", len(s.buf)).Msg("persist bars failed")
	}
	s.buf = s.buf[:0]
}
