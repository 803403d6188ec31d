// Command sequencerd runs the embedded sequencer and its JSON-RPC surface,
// optionally forking state from an upstream network at a pinned block.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"chainforge/internal/blockingpool"
	"chainforge/internal/forkstate"
	"chainforge/internal/rpc"
	"chainforge/internal/sequencer"
	"chainforge/internal/starknetrpc"
	"chainforge/internal/xlog"
	"chainforge/pkg/config"
)

func main() {
	var env string

	root := &cobra.Command{
		Use:   "sequencerd",
		Short: "chainforge sequencer node with a JSON-RPC surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(env)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	root.Flags().StringVar(&env, "env", "", "configuration environment overlay to merge")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log := xlog.New(cfg.Logging.Level, cfg.Logging.File)

	ioPool := blockingpool.New(poolSize(cfg.Sequencer.IOPoolSize, blockingpool.IOPoolSize))
	cpuPool := blockingpool.New(poolSize(cfg.Sequencer.CPUPoolSize, blockingpool.CPUPoolSize()))

	core := sequencer.NewMemory(cfg.Sequencer.ChainID)
	if cfg.Sequencer.BlockIntervalMS > 0 {
		core.StartInterval(uint64(time.Now().Unix()))
	}

	var (
		rpcCore sequencer.Core = core
		fork    rpc.ForkClient
	)
	rpcCfg := rpc.Config{
		DisableValidate:  cfg.Sequencer.DisableValidate,
		DisableFee:       cfg.Sequencer.DisableFeeCharge,
		MaxEventPageSize: cfg.Sequencer.MaxEventPageSize,
	}

	if cfg.Fork.Enabled {
		client, err := starknetrpc.Dial(ctx, cfg.Fork.UpstreamURL)
		if err != nil {
			return fmt.Errorf("dial fork upstream: %w", err)
		}
		defer client.Close()

		block := forkstate.BlockID{Number: cfg.Fork.BlockNumber}
		handle := forkstate.New(ctx, forkstate.RPCProvider{Client: client}, block)
		provider := forkstate.NewSharedStateProvider(handle, cpuPool)
		rpcCore = sequencer.NewForked(core, provider)
		fork = client
		rpcCfg.ForkPoint = cfg.Fork.BlockNumber
		log.WithField("upstream", cfg.Fork.UpstreamURL).Info("sequencerd: forking enabled")
	}

	server := rpc.NewServer(rpcCore, fork, nil, ioPool, cpuPool, rpcCfg, log)
	httpServer := &http.Server{Addr: cfg.Sequencer.ListenAddr, Handler: server.Router()}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Sequencer.ListenAddr).Info("sequencerd: serving JSON-RPC")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("sequencerd: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func poolSize(configured, fallback int) int {
	if configured > 0 {
		return configured
	}
	return fallback
}
