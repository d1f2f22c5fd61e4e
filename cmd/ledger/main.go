package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"solana-wallet-ledger/internal/config"
	"solana-wallet-ledger/internal/domain"
	"solana-wallet-ledger/internal/logging"
	"solana-wallet-ledger/internal/normalization"
	"solana-wallet-ledger/internal/observability"
	"solana-wallet-ledger/internal/pipeline"
	"solana-wallet-ledger/internal/solana"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to TOML config file")
	mode := flag.String("mode", "ingest", "Mode: ingest, rpc-ingest, rpc-backfill, or recompute")
	wallet := flag.String("wallet", "", "Tracked wallet address")
	token := flag.String("token", "", "Token mint for recompute (empty for the whole wallet)")
	files := flag.String("file", "", "Comma-separated input JSON files for ingest modes")
	noRecompute := flag.Bool("no-recompute", false, "Do not recompute touched tokens after ingest")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.MetricsAddr != "" {
		go serveMetrics(logger, cfg.MetricsAddr)
	}

	if err := checkWallet(logger, *wallet); err != nil {
		logger.Fatal("invalid wallet", zap.Error(err))
	}

	// Cancel on the first signal, exit on the second
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()

		sig = <-sigCh
		logger.Warn("received second signal, forcing exit", zap.String("signal", sig.String()))
		os.Exit(1)
	}()

	a, err := newApp(ctx, cfg, logger, !*noRecompute)
	if err != nil {
		logger.Fatal("initialize", zap.Error(err))
	}
	defer a.close()

	switch *mode {
	case "ingest":
		err = runIngest(ctx, a, *wallet, splitList(*files), decodeEnhancedFile)
	case "rpc-ingest":
		err = runIngest(ctx, a, *wallet, splitList(*files), decodeRPCFile)
	case "rpc-backfill":
		err = runBackfill(ctx, a, *wallet)
	case "recompute":
		err = runRecompute(ctx, a, *wallet, *token)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("run failed", zap.String("mode", *mode), zap.Error(err))
		a.close()
		os.Exit(1)
	}
	logger.Info("done", zap.String("mode", *mode))
}

func serveMetrics(logger *zap.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	logger.Info("starting metrics server", zap.String("addr", addr))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server", zap.Error(err))
	}
}

// checkWallet rejects malformed addresses and warns on off-curve ones,
// which are program accounts rather than user wallets.
func checkWallet(logger *zap.Logger, wallet string) error {
	if wallet == "" {
		return fmt.Errorf("-wallet is required")
	}
	if !normalization.IsValidAddress(wallet) {
		return fmt.Errorf("%q is not a base58 32-byte address", wallet)
	}
	if !normalization.IsOnCurve(wallet) {
		logger.Warn("wallet is off-curve, likely a program derived address", zap.String("wallet", wallet))
	}
	return nil
}

type decodeFunc func(data []byte) ([]*domain.RawTransactionEvent, error)

func decodeEnhancedFile(data []byte) ([]*domain.RawTransactionEvent, error) {
	return normalization.DecodeEnhanced(data)
}

func decodeRPCFile(data []byte) ([]*domain.RawTransactionEvent, error) {
	tx, err := solana.DecodeTransaction(data)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, nil
	}
	return []*domain.RawTransactionEvent{normalization.FromRPCTransaction(tx)}, nil
}

func runIngest(ctx context.Context, a *app, wallet string, files []string, decode decodeFunc) error {
	if len(files) == 0 {
		return fmt.Errorf("-file is required for ingest modes")
	}

	var events []*domain.RawTransactionEvent
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		evs, err := decode(data)
		if err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		events = append(events, evs...)
	}

	res, err := a.pipeline.ProcessBatch(ctx, wallet, events)
	if err != nil {
		return err
	}

	counts := make(map[pipeline.Status]int)
	for _, out := range res.Outcomes {
		counts[out.Status]++
	}
	a.logger.Info("ingest complete",
		zap.Int("events", len(events)),
		zap.Int("appended", counts[pipeline.StatusAppended]),
		zap.Int("duplicates", counts[pipeline.StatusDuplicate]),
		zap.Int("void", counts[pipeline.StatusVoid]),
		zap.Int("not_a_trade", counts[pipeline.StatusNotATrade]),
		zap.Int("base_to_base", counts[pipeline.StatusBaseToBase]),
		zap.Int("ambiguous", counts[pipeline.StatusAmbiguous]),
		zap.Int("malformed", counts[pipeline.StatusMalformed]),
		zap.Strings("touched", res.Touched),
	)
	return nil
}

func runBackfill(ctx context.Context, a *app, wallet string) error {
	_, err := a.backfiller().Backfill(ctx, wallet)
	return err
}

func runRecompute(ctx context.Context, a *app, wallet, token string) error {
	if token != "" {
		_, err := a.recompute.Recompute(ctx, wallet, token)
		return err
	}

	results, err := a.recompute.RecomputeWallet(ctx, wallet)
	if err != nil {
		return err
	}

	var closed, open int
	for _, r := range results {
		closed += len(r.ClosedLots)
		open += len(r.OpenLots)
	}
	a.logger.Info("wallet recompute complete",
		zap.Int("tokens", len(results)),
		zap.Int("closed_lots", closed),
		zap.Int("open_lots", open),
	)
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
