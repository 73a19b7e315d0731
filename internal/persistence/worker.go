package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"PredictMesh/internal/observability"
	"PredictMesh/internal/projection"
)

// CoreOutput mirrors core.CoreOutput to avoid an import cycle.
// The orchestrator (cmd/main.go) bridges between core.CoreOutput and this.
type CoreOutput struct {
	Processed *ProcessedMessageRow
	Players   []projection.GlobalPlayer
	Guilds    []projection.GlobalGuild
	Markets   []projection.GlobalMarket
	Price     *projection.PriceFact
	Supplies  []projection.SupplyEntry
}

// PersistenceWorker drains the persist channel and batch-writes to
// Postgres. This goroutine runs independently from the shard core. The
// persist channel uses BLOCKING sends from the core, so if this worker
// falls behind, the core stalls rather than lose a dedup record or
// projection row.
type PersistenceWorker struct {
	writer       *ProjectionWriter
	inputChan    <-chan CoreOutput
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
}

type batch struct {
	processed []ProcessedMessageRow
	players   []projection.GlobalPlayer
	guilds    []projection.GlobalGuild
	markets   []projection.GlobalMarket
	price     *projection.PriceFact
	supplies  []projection.SupplyEntry
	outputs   int
}

func (b *batch) add(out CoreOutput) {
	if out.Processed != nil {
		b.processed = append(b.processed, *out.Processed)
	}
	b.players = append(b.players, out.Players...)
	b.guilds = append(b.guilds, out.Guilds...)
	b.markets = append(b.markets, out.Markets...)
	if out.Price != nil {
		b.price = out.Price
	}
	b.supplies = append(b.supplies, out.Supplies...)
	b.outputs++
}

func (b *batch) reset() {
	b.processed = b.processed[:0]
	b.players = b.players[:0]
	b.guilds = b.guilds[:0]
	b.markets = b.markets[:0]
	b.price = nil
	b.supplies = b.supplies[:0]
	b.outputs = 0
}

func (b *batch) empty() bool {
	return b.outputs == 0
}

func NewPersistenceWorker(
	db *sql.DB,
	inputChan <-chan CoreOutput,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
) *PersistenceWorker {
	return &PersistenceWorker{
		writer:       NewProjectionWriter(db),
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
	}
}

// Run starts the persistence worker loop. It batches incoming outputs
// and flushes either when the batch is full or the flush timeout expires.
// Blocks until ctx is cancelled.
func (pw *PersistenceWorker) Run(ctx context.Context) error {
	var b batch

	timer := time.NewTimer(pw.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			// Graceful shutdown: flush remaining
			if !b.empty() {
				if err := pw.flush(context.Background(), &b); err != nil {
					log.Printf("ERROR: final flush failed: %v", err)
				}
			}
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				if !b.empty() {
					if err := pw.flush(context.Background(), &b); err != nil {
						log.Printf("ERROR: final flush failed: %v", err)
					}
				}
				return nil
			}

			b.add(output)

			if b.outputs >= pw.batchSize {
				if err := pw.flushWithRetry(ctx, &b); err != nil {
					log.Printf("ERROR: batch flush failed after retries: %v", err)
				}
				b.reset()
				timer.Reset(pw.flushTimeout)
			}

		case <-timer.C:
			if !b.empty() {
				if err := pw.flushWithRetry(ctx, &b); err != nil {
					log.Printf("ERROR: timeout flush failed after retries: %v", err)
				}
				b.reset()
			}
			timer.Reset(pw.flushTimeout)
		}
	}
}

// flushWithRetry attempts to flush with exponential backoff. The worker
// never drops a batch; it retries until the write succeeds or the
// context is cancelled, then makes one final attempt on shutdown.
func (pw *PersistenceWorker) flushWithRetry(ctx context.Context, b *batch) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			log.Printf("WARN: persistence retry attempt %d (backoff=%v, outputs=%d)",
				attempt, backoff, b.outputs)
			select {
			case <-ctx.Done():
				finalErr := pw.flush(context.Background(), b)
				if finalErr != nil {
					return fmt.Errorf("final flush on shutdown failed: %w", finalErr)
				}
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := pw.flush(ctx, b)
		if err == nil {
			if attempt > 0 {
				log.Printf("INFO: persistence flush succeeded after %d retries", attempt)
			}
			return nil
		}

		if pw.metrics != nil {
			pw.metrics.PersistRetry.Inc()
		}
	}
}

func (pw *PersistenceWorker) flush(ctx context.Context, b *batch) error {
	start := time.Now()

	// One transaction per batch: the dedup record and the projection
	// rows it produced land atomically.
	tx, err := pw.writer.db.BeginTx(ctx, nil)
	if err != nil {
		pw.recordError("tx_begin")
		return err
	}
	defer tx.Rollback()

	if err := pw.writer.WriteProcessedMessages(ctx, tx, b.processed); err != nil {
		pw.recordError("write_messages")
		return err
	}
	if err := pw.writer.UpsertPlayers(ctx, tx, b.players); err != nil {
		pw.recordError("write_players")
		return err
	}
	if err := pw.writer.UpsertGuilds(ctx, tx, b.guilds); err != nil {
		pw.recordError("write_guilds")
		return err
	}
	if err := pw.writer.UpsertMarkets(ctx, tx, b.markets); err != nil {
		pw.recordError("write_markets")
		return err
	}
	if err := pw.writer.UpsertPrice(ctx, tx, b.price); err != nil {
		pw.recordError("write_price")
		return err
	}
	if err := pw.writer.UpsertSupplies(ctx, tx, b.supplies); err != nil {
		pw.recordError("write_supplies")
		return err
	}

	if err := tx.Commit(); err != nil {
		pw.recordError("tx_commit")
		return err
	}

	if pw.metrics != nil {
		pw.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		pw.metrics.PersistBatchSize.Observe(float64(b.outputs))
		pw.metrics.PersistMessagesWritten.Add(float64(len(b.processed)))
		pw.metrics.PersistRowsWritten.WithLabelValues("global_players").Add(float64(len(b.players)))
		pw.metrics.PersistRowsWritten.WithLabelValues("global_guilds").Add(float64(len(b.guilds)))
		pw.metrics.PersistRowsWritten.WithLabelValues("global_markets").Add(float64(len(b.markets)))
		pw.metrics.PersistRowsWritten.WithLabelValues("supply_state").Add(float64(len(b.supplies)))
	}

	return nil
}

func (pw *PersistenceWorker) recordError(errorType string) {
	if pw.metrics != nil {
		pw.metrics.PersistErrors.WithLabelValues(errorType).Inc()
	}
}

// GetWriter returns the underlying writer.
func (pw *PersistenceWorker) GetWriter() *ProjectionWriter {
	return pw.writer
}
