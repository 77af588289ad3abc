package persistence

import (
	"TrueMarket/internal/core"
	"TrueMarket/internal/observability"
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// BlockWorker drains committed blocks and batch-writes them to the block log.
// The chain sends blocks with a blocking send, so if this worker falls
// behind the chain stalls and no block is lost.
type BlockWorker struct {
	db           *sql.DB
	blocks       *BlockLog
	inputChan    <-chan core.Block
	batchSize    int
	flushTimeout time.Duration
	log          zerolog.Logger
	metrics      *observability.Metrics
}

func NewBlockWorker(
	db *sql.DB,
	dialect Dialect,
	inputChan <-chan core.Block,
	batchSize int,
	flushTimeout time.Duration,
	log zerolog.Logger,
	metrics *observability.Metrics,
) *BlockWorker {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &BlockWorker{
		db:           db,
		blocks:       NewBlockLog(db, dialect),
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		log:          log,
		metrics:      metrics,
	}
}

// Run batches incoming blocks and flushes when the batch is full or the
// flush timeout expires. Blocks until ctx is cancelled or the input closes.
func (w *BlockWorker) Run(ctx context.Context) error {
	batch := make([]BlockRow, 0, w.batchSize)

	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(batch) > 0 {
				if err := w.flush(context.Background(), batch); err != nil {
					w.log.Error().Err(err).Int("blocks", len(batch)).Msg("final flush failed")
				}
			}
			return ctx.Err()

		case b, ok := <-w.inputChan:
			if !ok {
				if len(batch) > 0 {
					if err := w.flush(context.Background(), batch); err != nil {
						w.log.Error().Err(err).Int("blocks", len(batch)).Msg("final flush failed")
					}
				}
				return nil
			}

			row, err := BlockRowFrom(b)
			if err != nil {
				w.log.Error().Err(err).Uint64("height", b.Height).Msg("cannot encode block; skipping")
				if w.metrics != nil {
					w.metrics.PersistErrors.WithLabelValues("encode").Inc()
				}
				continue
			}
			batch = append(batch, row)

			if len(batch) >= w.batchSize {
				if err := w.flushWithRetry(ctx, batch); err != nil {
					w.log.Error().Err(err).Msg("batch flush failed after retries")
				}
				batch = batch[:0]
				timer.Reset(w.flushTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				if err := w.flushWithRetry(ctx, batch); err != nil {
					w.log.Error().Err(err).Msg("timeout flush failed after retries")
				}
				batch = batch[:0]
			}
			timer.Reset(w.flushTimeout)
		}
	}
}

// flushWithRetry retries with exponential backoff until the write succeeds
// or ctx is cancelled, in which case one last attempt is made.
func (w *BlockWorker) flushWithRetry(ctx context.Context, rows []BlockRow) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			w.log.Warn().Int("attempt", attempt).Dur("backoff", backoff).Int("blocks", len(rows)).Msg("block log retry")
			select {
			case <-ctx.Done():
				if err := w.flush(context.Background(), rows); err != nil {
					return fmt.Errorf("final flush on shutdown failed: %w", err)
				}
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := w.flush(ctx, rows)
		if err == nil {
			if attempt > 0 {
				w.log.Info().Int("retries", attempt).Msg("block log flush succeeded")
			}
			return nil
		}
		w.log.Warn().Err(err).Msg("block log flush failed")

		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("retry").Inc()
		}
	}
}

func (w *BlockWorker) flush(ctx context.Context, rows []BlockRow) error {
	start := time.Now()

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("tx_begin").Inc()
		}
		return err
	}
	defer tx.Rollback()

	if err := w.blocks.WriteBatch(ctx, tx, rows); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("write_blocks").Inc()
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("tx_commit").Inc()
		}
		return err
	}

	if w.metrics != nil {
		w.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		w.metrics.PersistBatchSize.Observe(float64(len(rows)))
		w.metrics.PersistBlocksWritten.Add(float64(len(rows)))
	}
	return nil
}
