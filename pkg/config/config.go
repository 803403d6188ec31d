// Package config provides a reusable viper-backed loader for chainforge's
// two binaries (cmd/sequencerd, cmd/toriid). It is versioned so each
// binary can depend on a stable API contract.
//
// Version: v0.1.0
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"chainforge/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config is the unified configuration for a chainforge node. It mirrors
// the YAML layout of config/default.yaml.
type Config struct {
	Sequencer struct {
		ChainID          string `mapstructure:"chain_id" json:"chain_id"`
		ListenAddr       string `mapstructure:"listen_addr" json:"listen_addr"`
		DisableValidate  bool   `mapstructure:"disable_validate" json:"disable_validate"`
		DisableFeeCharge bool   `mapstructure:"disable_fee_charge" json:"disable_fee_charge"`
		BlockIntervalMS  int    `mapstructure:"block_interval_ms" json:"block_interval_ms"`
		MaxEventPageSize int    `mapstructure:"max_event_page_size" json:"max_event_page_size"`
		IOPoolSize       int    `mapstructure:"io_pool_size" json:"io_pool_size"`
		CPUPoolSize      int    `mapstructure:"cpu_pool_size" json:"cpu_pool_size"`
	} `mapstructure:"sequencer" json:"sequencer"`

	Fork struct {
		Enabled    bool   `mapstructure:"enabled" json:"enabled"`
		UpstreamURL string `mapstructure:"upstream_url" json:"upstream_url"`
		BlockNumber *uint64 `mapstructure:"block_number" json:"block_number"`
	} `mapstructure:"fork" json:"fork"`

	Indexer struct {
		RPCURL            string   `mapstructure:"rpc_url" json:"rpc_url"`
		PollingIntervalMS int      `mapstructure:"polling_interval_ms" json:"polling_interval_ms"`
		BlocksChunkSize   uint64   `mapstructure:"blocks_chunk_size" json:"blocks_chunk_size"`
		EventChunkSize    int      `mapstructure:"event_chunk_size" json:"event_chunk_size"`
		MaxConcurrentTasks int     `mapstructure:"max_concurrent_tasks" json:"max_concurrent_tasks"`
		FetchTransactions bool     `mapstructure:"fetch_transactions" json:"fetch_transactions"`
		IndexPending      bool     `mapstructure:"index_pending" json:"index_pending"`
		WorldAddresses    []string `mapstructure:"world_addresses" json:"world_addresses"`
		// Contracts maps additional watched addresses to their contract
		// type (ERC20, ERC721, ERC1155, OTHER).
		Contracts         map[string]string `mapstructure:"contracts" json:"contracts"`
		HistoricalModels  []string `mapstructure:"historical_models" json:"historical_models"`
	} `mapstructure:"indexer" json:"indexer"`

	Store struct {
		DBPath       string            `mapstructure:"db_path" json:"db_path"`
		IndexAllCols bool              `mapstructure:"index_all_columns" json:"index_all_columns"`
		ModelIndices map[string]string `mapstructure:"model_indices" json:"model_indices"`
	} `mapstructure:"store" json:"store"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads the default configuration file and merges any environment
// specific overrides on top of the base file.
// The resulting configuration is stored in AppConfig and returned.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("config")
	viper.AddConfigPath(".")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.SetEnvPrefix("CHAINFORGE")
	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the CHAINFORGE_ENV environment
// variable, defaulting to the base "default" file alone.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("CHAINFORGE_ENV", ""))
}
