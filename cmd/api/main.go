package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cryptopaylink/cryptopaylink/pkg/api"
	"github.com/cryptopaylink/cryptopaylink/pkg/app"
	"github.com/cryptopaylink/cryptopaylink/pkg/chain/evm"
	"github.com/cryptopaylink/cryptopaylink/pkg/chain/solana"
	"github.com/cryptopaylink/cryptopaylink/pkg/config"
	"github.com/cryptopaylink/cryptopaylink/pkg/core"
	"github.com/cryptopaylink/cryptopaylink/pkg/oracle"
	"github.com/cryptopaylink/cryptopaylink/pkg/poller"
	"github.com/cryptopaylink/cryptopaylink/pkg/reconcile"
	"github.com/cryptopaylink/cryptopaylink/pkg/storage"
	"github.com/cryptopaylink/cryptopaylink/pkg/verifier"
)

func main() {
	cfg := config.Load()
	log := app.Logger(cfg.App.LogLevel)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := buildStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("storage init", zap.Error(err))
	}
	defer closeStore()

	prices := oracle.NewClient(cfg.Oracle.BaseURL, log)

	v := verifier.New(cfg.Watcher.TimeWindow, log)
	v.RegisterAdapter(core.ChainSolana, core.CurrencySOL,
		solana.NewAdapter(solana.NewRPCClient(cfg.Chains.SolanaRPCURL), log))
	if cfg.Chains.EthereumRPCURL != "" {
		if err := registerEthereumAdapters(v, cfg.Chains.EthereumRPCURL, log); err != nil {
			// log.Fatal exits without running defers, so close the store here
			closeStore()
			log.Fatal("ethereum adapters init", zap.Error(err))
		}
	} else {
		log.Warn("no ethereum rpc configured, ethereum payments disabled")
	}

	var notifier reconcile.Notifier
	if cfg.Notifier.ConfirmationURL != "" {
		notifier = reconcile.NewHTTPNotifier(cfg.Notifier.ConfirmationURL)
	} else {
		notifier = reconcile.NewNopNotifier(log)
	}
	reconciler := reconcile.New(store, v, notifier, log)
	watcher := poller.New(reconciler, cfg.Watcher.PollInterval, cfg.Watcher.Timeout, log)

	handler := api.NewHandler(store, prices, reconciler, log)
	handler.SetWatchFunc(func(intentID uuid.UUID) {
		go func() {
			if _, err := watcher.Watch(ctx, intentID); err != nil && ctx.Err() == nil {
				log.Error("payment watch aborted",
					zap.String("intent", intentID.String()), zap.Error(err))
			}
		}()
	})

	metricsServer := http.Server{
		Addr:    fmt.Sprintf(":%v", cfg.App.MetricsPort),
		Handler: promhttp.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics listen and serve", zap.Error(err))
		}
	}()

	httpServer := http.Server{
		Addr:    fmt.Sprintf(":%v", cfg.API.Port),
		Handler: api.NewRouter(handler),
	}
	go func() {
		log.Info("listening", zap.Int("port", cfg.API.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("listen and serve", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", zap.Error(err))
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error("metrics shutdown", zap.Error(err))
	}
	reconciler.Wait()
}

func registerEthereumAdapters(v *verifier.Verifier, rpcURL string, log *zap.Logger) error {
	ethClient, err := evm.NewRPCClient(rpcURL)
	if err != nil {
		return err
	}
	v.RegisterAdapter(core.ChainEthereum, core.CurrencyETH, evm.NewNativeAdapter(ethClient, log))
	for _, currency := range []core.Currency{core.CurrencyUSDT, core.CurrencyUSDC} {
		tokenAdapter, err := evm.NewTokenAdapter(ethClient, currency, log)
		if err != nil {
			return err
		}
		v.RegisterAdapter(core.ChainEthereum, currency, tokenAdapter)
	}
	return nil
}

func buildStore(ctx context.Context, cfg config.Config, log *zap.Logger) (storage.IntentStore, func(), error) {
	if cfg.Storage.PostgresURI == "" {
		log.Warn("no postgres uri configured, using in-memory store")
		return storage.NewMemoryStore(), func() {}, nil
	}
	pg, err := storage.NewPostgresStore(ctx, cfg.Storage.PostgresURI)
	if err != nil {
		return nil, nil, err
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		pg.Close()
		return nil, nil, err
	}
	return pg, pg.Close, nil
}
