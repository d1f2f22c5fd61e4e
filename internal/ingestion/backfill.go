// Package ingestion backfills a wallet's history from Solana JSON-RPC into
// the trade pipeline.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"solana-wallet-ledger/internal/domain"
	"solana-wallet-ledger/internal/logging"
	"solana-wallet-ledger/internal/normalization"
	"solana-wallet-ledger/internal/pipeline"
	"solana-wallet-ledger/internal/solana"
	"solana-wallet-ledger/internal/storage"
)

// BatchProcessor consumes normalized events for one wallet.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, walletID string, events []*domain.RawTransactionEvent) (*pipeline.BatchResult, error)
}

// Backfiller pages a wallet's signatures, fetches each transaction and feeds
// the normalized events to the pipeline oldest first.
type Backfiller struct {
	rpc       solana.RPCClient
	cursors   storage.BackfillCursorStore
	processor BatchProcessor
	pageSize  int
	maxPages  int
	batchSize int
	logger    *zap.Logger
}

// BackfillOptions contains configuration for creating a Backfiller.
type BackfillOptions struct {
	RPC       solana.RPCClient
	Cursors   storage.BackfillCursorStore
	Processor BatchProcessor
	PageSize  int
	// MaxPages bounds one run. Zero means unbounded.
	MaxPages  int
	BatchSize int
	Logger    *zap.Logger
}

// NewBackfiller creates a new wallet backfiller.
func NewBackfiller(opts BackfillOptions) *Backfiller {
	pageSize := opts.PageSize
	if pageSize <= 0 || pageSize > 1000 {
		pageSize = 1000
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	return &Backfiller{
		rpc:       opts.RPC,
		cursors:   opts.Cursors,
		processor: opts.Processor,
		pageSize:  pageSize,
		maxPages:  opts.MaxPages,
		batchSize: batchSize,
		logger:    logging.OrNop(opts.Logger),
	}
}

// BackfillResult contains statistics from a backfill operation.
type BackfillResult struct {
	SignaturesSeen int
	FailedSkipped  int
	Missing        int
	Processed      int
	Appended       int
	Duplicates     int
	Touched        []string
	// Truncated is set when MaxPages stopped paging before the cursor was
	// reached. The cursor is then left in place so the gap is refetched.
	Truncated bool
	Duration  time.Duration
}

// Backfill ingests every transaction newer than the wallet's cursor.
func (b *Backfiller) Backfill(ctx context.Context, walletID string) (*BackfillResult, error) {
	start := time.Now()
	result := &BackfillResult{}
	log := b.logger.With(zap.String("wallet", walletID))

	// 1. Load the cursor
	until := ""
	cursor, err := b.cursors.Get(ctx, walletID)
	switch {
	case err == nil:
		until = cursor.Signature
	case errors.Is(err, storage.ErrNotFound):
	default:
		return nil, fmt.Errorf("get backfill cursor: %w", err)
	}

	// 2. Page signatures newest first down to the cursor
	sigs, truncated, err := b.pageSignatures(ctx, walletID, until)
	if err != nil {
		return nil, err
	}
	result.SignaturesSeen = len(sigs)
	result.Truncated = truncated

	log.Info("backfill started",
		zap.String("until", until),
		zap.Int("signatures", len(sigs)),
		zap.Bool("truncated", truncated),
	)

	// 3. Oldest first, so the cursor only ever moves forward
	for i, j := 0, len(sigs)-1; i < j; i, j = i+1, j-1 {
		sigs[i], sigs[j] = sigs[j], sigs[i]
	}

	touched := make(map[string]struct{})
	for i := 0; i < len(sigs); i += b.batchSize {
		end := i + b.batchSize
		if end > len(sigs) {
			end = len(sigs)
		}
		chunk := sigs[i:end]

		events, err := b.fetchEvents(ctx, chunk, result)
		if err != nil {
			return result, err
		}

		if len(events) > 0 {
			batch, err := b.processor.ProcessBatch(ctx, walletID, events)
			if err != nil {
				return result, fmt.Errorf("process batch: %w", err)
			}
			result.Processed += len(batch.Outcomes)
			for _, out := range batch.Outcomes {
				switch out.Status {
				case pipeline.StatusAppended:
					result.Appended++
				case pipeline.StatusDuplicate:
					result.Duplicates++
				}
			}
			for _, mint := range batch.Touched {
				touched[mint] = struct{}{}
			}
		}

		// 4. Advance the cursor past the chunk
		if !truncated {
			last := chunk[len(chunk)-1]
			if err := b.cursors.Set(ctx, &storage.BackfillCursor{
				WalletID:  walletID,
				Slot:      last.Slot,
				Signature: last.Signature,
			}); err != nil {
				return result, fmt.Errorf("set backfill cursor: %w", err)
			}
		}
	}

	for mint := range touched {
		result.Touched = append(result.Touched, mint)
	}
	sort.Strings(result.Touched)

	result.Duration = time.Since(start)
	if truncated {
		log.Warn("backfill truncated by max pages, cursor not advanced", zap.Int("max_pages", b.maxPages))
	}
	log.Info("backfill complete",
		zap.Int("processed", result.Processed),
		zap.Int("appended", result.Appended),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("failed_skipped", result.FailedSkipped),
		zap.Int("missing", result.Missing),
		zap.Duration("duration", result.Duration),
	)

	return result, nil
}

// pageSignatures returns signatures newer than until, newest first.
func (b *Backfiller) pageSignatures(ctx context.Context, walletID, until string) ([]solana.SignatureInfo, bool, error) {
	var all []solana.SignatureInfo
	before := ""

	for page := 0; ; page++ {
		if b.maxPages > 0 && page == b.maxPages {
			return all, true, nil
		}

		sigs, err := b.rpc.GetSignaturesForAddress(ctx, walletID, &solana.SignaturesOpts{
			Before: before,
			Until:  until,
			Limit:  b.pageSize,
		})
		if err != nil {
			return nil, false, fmt.Errorf("get signatures for %s: %w", walletID, err)
		}

		all = append(all, sigs...)
		if len(sigs) < b.pageSize {
			return all, false, nil
		}
		before = sigs[len(sigs)-1].Signature
	}
}

// fetchEvents fetches and normalizes the chunk's transactions. Failed and
// unknown signatures are counted and skipped.
func (b *Backfiller) fetchEvents(ctx context.Context, chunk []solana.SignatureInfo, result *BackfillResult) ([]*domain.RawTransactionEvent, error) {
	events := make([]*domain.RawTransactionEvent, 0, len(chunk))
	for _, sig := range chunk {
		if sig.Err != nil {
			result.FailedSkipped++
			continue
		}

		tx, err := b.rpc.GetTransaction(ctx, sig.Signature)
		if err != nil {
			return nil, fmt.Errorf("get transaction %s: %w", sig.Signature, err)
		}
		if tx == nil {
			result.Missing++
			b.logger.Warn("transaction not found", zap.String("signature", sig.Signature))
			continue
		}

		events = append(events, normalization.FromRPCTransaction(tx))
	}
	return events, nil
}
