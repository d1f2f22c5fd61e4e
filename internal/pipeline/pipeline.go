// Package pipeline turns normalized transaction events into ledger trades.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"solana-wallet-ledger/internal/classifier"
	"solana-wallet-ledger/internal/domain"
	"solana-wallet-ledger/internal/idhash"
	"solana-wallet-ledger/internal/logging"
	"solana-wallet-ledger/internal/observability"
	"solana-wallet-ledger/internal/resolver"
	"solana-wallet-ledger/internal/storage"
)

// Status is the terminal outcome of one event.
type Status string

const (
	StatusAppended   Status = "appended"
	StatusDuplicate  Status = "duplicate"
	StatusNotATrade  Status = "not_a_trade"
	StatusBaseToBase Status = "base_to_base"
	StatusVoid       Status = "void"
	StatusAmbiguous  Status = "ambiguous_amount"
	StatusMalformed  Status = "malformed"
)

// Outcome describes what happened to one event. Trade is set whenever a trade
// was built, including void and duplicate trades.
type Outcome struct {
	Signature string
	Status    Status
	Reason    string
	Trade     *domain.Trade
}

// BatchResult is the output of ProcessBatch.
type BatchResult struct {
	Outcomes []*Outcome
	// Touched lists the token mints that gained a non-void trade, sorted.
	Touched []string
}

// TouchedFunc is called after a batch with the mints that gained trades.
type TouchedFunc func(ctx context.Context, walletID string, tokenIDs []string) error

// Pipeline classifies, resolves and appends events. Classification and
// resolution hold no shared state; only the append touches storage.
type Pipeline struct {
	classifier *classifier.Classifier
	resolver   *resolver.Resolver
	ledger     storage.TradeLedger
	workers    int
	clock      func() time.Time
	onTouched  TouchedFunc
	logger     *zap.Logger
}

// New creates a pipeline.
func New(cls *classifier.Classifier, res *resolver.Resolver, ledger storage.TradeLedger, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		classifier: cls,
		resolver:   res,
		ledger:     ledger,
		workers:    8,
		clock:      time.Now,
		logger:     logging.OrNop(logger),
	}
}

// WithWorkers bounds the classification fan-out of ProcessBatch.
func (p *Pipeline) WithWorkers(n int) *Pipeline {
	if n > 0 {
		p.workers = n
	}
	return p
}

// WithClock sets the clock used for trade creation timestamps.
func (p *Pipeline) WithClock(clock func() time.Time) *Pipeline {
	p.clock = clock
	return p
}

// WithOnTouched sets the hook run after each batch that appended trades.
func (p *Pipeline) WithOnTouched(fn TouchedFunc) *Pipeline {
	p.onTouched = fn
	return p
}

// ProcessEvent runs one event through the pipeline. Only storage errors are
// returned; every other failure is reported in the outcome.
func (p *Pipeline) ProcessEvent(ctx context.Context, walletID string, ev *domain.RawTransactionEvent) (*Outcome, error) {
	out := p.evaluate(walletID, ev)
	if err := p.commit(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ProcessBatch evaluates events in parallel and appends the resulting trades
// in event order.
func (p *Pipeline) ProcessBatch(ctx context.Context, walletID string, events []*domain.RawTransactionEvent) (*BatchResult, error) {
	outcomes := make([]*Outcome, len(events))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, ev := range events {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = p.evaluate(walletID, ev)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	touched := make(map[string]struct{})
	for _, out := range outcomes {
		if err := p.commit(ctx, out); err != nil {
			return nil, err
		}
		if out.Status == StatusAppended {
			touched[out.Trade.TokenMint] = struct{}{}
		}
	}

	result := &BatchResult{Outcomes: outcomes}
	for mint := range touched {
		result.Touched = append(result.Touched, mint)
	}
	sort.Strings(result.Touched)

	observability.MarkIngestion(p.clock().Unix())

	if p.onTouched != nil && len(result.Touched) > 0 {
		if err := p.onTouched(ctx, walletID, result.Touched); err != nil {
			return result, fmt.Errorf("on touched: %w", err)
		}
	}
	return result, nil
}

// evaluate classifies and resolves one event without touching storage.
func (p *Pipeline) evaluate(walletID string, ev *domain.RawTransactionEvent) *Outcome {
	out := &Outcome{Signature: ev.Signature}

	res := p.classifier.Classify(ev, walletID)
	switch res.Kind {
	case classifier.KindNotATrade:
		out.Status = StatusNotATrade
		out.Reason = res.Reason
		return out

	case classifier.KindBaseToBase:
		out.Status = StatusBaseToBase
		return out

	case classifier.KindVoid:
		out.Status = StatusVoid
		out.Trade = p.newTrade(walletID, res.VoidMint, domain.TradeSideVoid, ev)
		return out
	}

	c := res.Candidate
	r, err := p.resolver.Resolve(c)
	if err != nil {
		out.Reason = err.Error()
		if errors.Is(err, resolver.ErrAmbiguousAmount) {
			out.Status = StatusAmbiguous
		} else {
			out.Status = StatusMalformed
		}
		return out
	}

	t := p.newTrade(walletID, c.TokenMint, c.Side, ev)
	t.AmountToken = r.AmountToken.InexactFloat64()
	t.AmountBase = r.AmountBase.InexactFloat64()
	t.PriceBasePerToken = r.Price.InexactFloat64()
	t.BaseTokenSymbol = c.BaseSymbol
	t.ResolvedFrom = r.Source

	if err := t.Validate(); err != nil {
		out.Status = StatusMalformed
		out.Reason = err.Error()
		return out
	}

	out.Status = StatusAppended
	out.Trade = t
	return out
}

func (p *Pipeline) newTrade(walletID, mint string, side domain.TradeSide, ev *domain.RawTransactionEvent) *domain.Trade {
	return &domain.Trade{
		ID:              idhash.ComputeTradeID(walletID, mint, ev.Signature),
		WalletID:        walletID,
		TokenMint:       mint,
		Side:            side,
		Timestamp:       ev.Timestamp,
		SourceSignature: ev.Signature,
		DexLabel:        ev.Source,
		CreatedAt:       p.clock().UnixMilli(),
	}
}

// commit appends the outcome's trade, if any, and records metrics.
func (p *Pipeline) commit(ctx context.Context, out *Outcome) error {
	log := p.logger.With(zap.String("signature", out.Signature))

	switch out.Status {
	case StatusAppended, StatusVoid:
		created, err := p.ledger.Append(ctx, out.Trade)
		if err != nil {
			observability.RecordEventError("append")
			return fmt.Errorf("append trade %s: %w", out.Signature, err)
		}
		observability.RecordAppend(created)
		if out.Status == StatusAppended {
			observability.RecordResolverSource(out.Trade.ResolvedFrom)
			if !created {
				out.Status = StatusDuplicate
			}
		}
		log.Debug("trade appended",
			zap.String("token", out.Trade.TokenMint),
			zap.String("side", out.Trade.Side.String()),
			zap.Bool("created", created),
		)

	case StatusAmbiguous:
		log.Warn("ambiguous base amount, trade not emitted", zap.String("reason", out.Reason))

	case StatusMalformed:
		observability.RecordEventError("resolve")
		log.Warn("malformed trade rejected", zap.String("reason", out.Reason))

	default:
		log.Debug("event discarded", zap.String("status", string(out.Status)), zap.String("reason", out.Reason))
	}

	observability.RecordClassified(string(out.Status))
	return nil
}
