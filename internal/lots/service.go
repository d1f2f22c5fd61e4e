package lots

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"solana-wallet-ledger/internal/idhash"
	"solana-wallet-ledger/internal/lock"
	"solana-wallet-ledger/internal/logging"
	"solana-wallet-ledger/internal/observability"
	"solana-wallet-ledger/internal/storage"
)

// Service recomputes closed lots from the trade ledger.
type Service struct {
	ledger      storage.TradeLedger
	lots        storage.ClosedLotStore
	mirror      storage.ClosedLotStore
	locker      lock.Locker
	local       *lock.KeyedMutex
	lockTTL     time.Duration
	parallelism int
	matchOpts   Options
	logger      *zap.Logger
}

// ServiceOptions contains configuration for creating a Service.
type ServiceOptions struct {
	Ledger storage.TradeLedger
	Lots   storage.ClosedLotStore
	// Mirror receives a best-effort copy of every replacement. Optional.
	Mirror storage.ClosedLotStore
	// Locker serializes runs across processes. Optional.
	Locker      lock.Locker
	LockTTL     time.Duration
	Parallelism int
	Match       Options
	Logger      *zap.Logger
}

// NewService creates a recompute service.
func NewService(opts ServiceOptions) *Service {
	lockTTL := opts.LockTTL
	if lockTTL <= 0 {
		lockTTL = 2 * time.Minute
	}
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = 4
	}

	return &Service{
		ledger:      opts.Ledger,
		lots:        opts.Lots,
		mirror:      opts.Mirror,
		locker:      opts.Locker,
		local:       lock.NewKeyedMutex(),
		lockTTL:     lockTTL,
		parallelism: parallelism,
		matchOpts:   opts.Match.withDefaults(),
		logger:      logging.OrNop(opts.Logger),
	}
}

// Recompute replays the full trade history of (walletID, tokenID) and replaces
// its closed lots. Runs for the same pair never overlap.
func (s *Service) Recompute(ctx context.Context, walletID, tokenID string) (*MatchResult, error) {
	start := time.Now()
	log := s.logger.With(
		zap.String("run_id", uuid.NewString()),
		zap.String("wallet", walletID),
		zap.String("token", tokenID),
	)

	result, err := s.recompute(ctx, log, walletID, tokenID)
	elapsed := time.Since(start)
	if err != nil {
		observability.RecordRecompute("error", elapsed.Seconds(), 0, 0, 0)
		log.Error("recompute failed", zap.Error(err), zap.Duration("duration", elapsed))
		return nil, err
	}

	dust := 0
	if result.DustClosed {
		dust = 1
	}
	observability.RecordRecompute("success", elapsed.Seconds(), len(result.ClosedLots), len(result.Orphans), dust)
	observability.MarkRecompute(time.Now().Unix())

	log.Info("recompute complete",
		zap.Int("closed_lots", len(result.ClosedLots)),
		zap.Int("open_lots", len(result.OpenLots)),
		zap.Int("orphans", len(result.Orphans)),
		zap.Bool("dust_closed", result.DustClosed),
		zap.Int("skipped", result.Skipped),
		zap.Duration("duration", elapsed),
	)
	return result, nil
}

func (s *Service) recompute(ctx context.Context, log *zap.Logger, walletID, tokenID string) (*MatchResult, error) {
	key := idhash.ComputeRunKey(walletID, tokenID)

	unlockLocal := s.local.Lock(key)
	defer unlockLocal()

	if s.locker != nil {
		unlock, err := s.locker.Acquire(ctx, key, s.lockTTL)
		if err != nil {
			if errors.Is(err, lock.ErrLockHeld) {
				observability.RecordLockContention()
			}
			return nil, fmt.Errorf("acquire recompute lock: %w", err)
		}
		defer unlock()
	}

	trades, err := s.ledger.StreamByWalletToken(ctx, walletID, tokenID)
	if err != nil {
		return nil, fmt.Errorf("stream trades: %w", err)
	}

	result := Match(walletID, tokenID, trades, s.matchOpts)

	for _, o := range result.Orphans {
		log.Warn("sell exceeds open lots, remainder dropped",
			zap.String("sell_trade_id", o.SellTradeID),
			zap.Int64("timestamp", o.Timestamp),
			zap.Float64("unmatched_size", o.UnmatchedSize),
		)
	}

	tokens := []string{tokenID}
	if err := s.lots.ReplaceAll(ctx, walletID, tokens, result.ClosedLots); err != nil {
		return nil, fmt.Errorf("replace closed lots: %w", err)
	}

	if s.mirror != nil {
		if err := s.mirror.ReplaceAll(ctx, walletID, tokens, result.ClosedLots); err != nil {
			observability.RecordMirrorError()
			log.Warn("analytics mirror write failed", zap.Error(err))
		}
	}

	return result, nil
}

// RecomputeWallet recomputes every token the wallet has traded, in parallel.
// Results are ordered like TokensByWallet.
func (s *Service) RecomputeWallet(ctx context.Context, walletID string) ([]*MatchResult, error) {
	tokens, err := s.ledger.TokensByWallet(ctx, walletID)
	if err != nil {
		return nil, fmt.Errorf("list wallet tokens: %w", err)
	}

	results := make([]*MatchResult, len(tokens))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i, tokenID := range tokens {
		g.Go(func() error {
			res, err := s.Recompute(gctx, walletID, tokenID)
			if err != nil {
				return fmt.Errorf("recompute %s: %w", tokenID, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

// RecomputeTokens recomputes the given tokens of a wallet, in parallel.
func (s *Service) RecomputeTokens(ctx context.Context, walletID string, tokenIDs []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for _, tokenID := range tokenIDs {
		g.Go(func() error {
			if _, err := s.Recompute(gctx, walletID, tokenID); err != nil {
				return fmt.Errorf("recompute %s: %w", tokenID, err)
			}
			return nil
		})
	}
	return g.Wait()
}
