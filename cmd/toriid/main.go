// Command toriid runs the indexer engine against a sequencer's JSON-RPC
// surface and lands the projection into a local SQLite store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"chainforge/internal/indexer"
	"chainforge/internal/starknetrpc"
	"chainforge/internal/store"
	"chainforge/internal/xlog"
	"chainforge/pkg/config"
	"chainforge/pkg/felt"
)

func main() {
	var env string

	root := &cobra.Command{
		Use:   "toriid",
		Short: "chainforge indexer and projection store",
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

// rpcBlockSource adapts the starknetrpc client to the engine's
// BlockSource.
type rpcBlockSource struct {
	client *starknetrpc.Client
}

func (s rpcBlockSource) LatestNumber(ctx context.Context) (uint64, error) {
	return s.client.BlockNumber(ctx)
}

func (s rpcBlockSource) LatestHash(ctx context.Context) (felt.Felt, error) {
	hash, _, err := s.client.BlockHashAndNumber(ctx)
	return hash, err
}

func run(ctx context.Context, cfg *config.Config) error {
	log := xlog.New(cfg.Logging.Level, cfg.Logging.File)

	db, err := store.OpenDB(cfg.Store.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	historical := make(map[string]bool, len(cfg.Indexer.HistoricalModels))
	for _, m := range cfg.Indexer.HistoricalModels {
		historical[m] = true
	}
	modelIndices := map[string]map[string]bool{}
	for table, col := range cfg.Store.ModelIndices {
		if modelIndices[table] == nil {
			modelIndices[table] = map[string]bool{}
		}
		modelIndices[table][col] = true
	}
	st, err := store.New(db, store.Config{
		HistoricalModels: historical,
		ModelIndices:     modelIndices,
		IndexAllColumns:  cfg.Store.IndexAllCols,
	}, log)
	if err != nil {
		return err
	}
	defer st.Close()

	client, err := starknetrpc.Dial(ctx, cfg.Indexer.RPCURL)
	if err != nil {
		return fmt.Errorf("dial sequencer rpc: %w", err)
	}
	defer client.Close()

	addresses, contractTypes, err := watchList(cfg)
	if err != nil {
		return err
	}

	engineCfg := indexer.Config{
		Addresses:          addresses,
		ContractTypes:      contractTypes,
		BlocksChunkSize:    int(cfg.Indexer.BlocksChunkSize),
		EventChunkSize:     cfg.Indexer.EventChunkSize,
		MaxConcurrentTasks: cfg.Indexer.MaxConcurrentTasks,
		FetchTransactions:  cfg.Indexer.FetchTransactions,
		IndexPending:       cfg.Indexer.IndexPending,
		PollingInterval:    time.Duration(cfg.Indexer.PollingIntervalMS) * time.Millisecond,
	}

	registry := indexer.NewRegistry(indexer.DefaultProcessors()...)
	events := indexer.NewLocalEventSource(client, client)
	engine := indexer.New(engineCfg, registry, st, st, rpcBlockSource{client: client}, events, nil, log)

	log.WithField("contracts", len(addresses)).Info("toriid: indexing")
	if err := engine.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func watchList(cfg *config.Config) ([]felt.Felt, map[felt.Felt]indexer.ContractType, error) {
	var addresses []felt.Felt
	types := map[felt.Felt]indexer.ContractType{}
	for _, hex := range cfg.Indexer.WorldAddresses {
		addr, err := felt.FromHex(hex)
		if err != nil {
			return nil, nil, fmt.Errorf("world address %q: %w", hex, err)
		}
		addresses = append(addresses, addr)
		types[addr] = indexer.ContractWorld
	}
	for hex, kind := range cfg.Indexer.Contracts {
		addr, err := felt.FromHex(hex)
		if err != nil {
			return nil, nil, fmt.Errorf("contract address %q: %w", hex, err)
		}
		addresses = append(addresses, addr)
		types[addr] = indexer.ContractType(kind)
	}
	return addresses, types, nil
}
