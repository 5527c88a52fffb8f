package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type WorkerConfig struct {
	Database DatabaseConfig `mapstructure:"database" json:"database,omitempty"`
	Redis    RedisConfig    `mapstructure:"redis" json:"redis,omitempty"`
	Chain    ChainConfig    `mapstructure:"chain" json:"chain,omitempty"`
	Fees     FeeConfig      `mapstructure:"fees" json:"fees,omitempty"`
	Engine   EngineConfig   `mapstructure:"engine" json:"engine,omitempty"`
	Metrics  MetricsConfig  `mapstructure:"metrics" json:"metrics,omitempty"`
}

type ApiConfig struct {
	Server struct {
		Host        string `mapstructure:"host" json:"host,omitempty"`
		Port        int64  `mapstructure:"port" json:"port,omitempty"`
		AdminSecret string `mapstructure:"admin_secret" json:"admin_secret,omitempty"`
	} `mapstructure:"server" json:"server"`
	Database DatabaseConfig `mapstructure:"database" json:"database,omitempty"`
	Redis    RedisConfig    `mapstructure:"redis" json:"redis,omitempty"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn" json:"dsn,omitempty"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host" json:"host,omitempty"`
	Port     string `mapstructure:"port" json:"port,omitempty"`
	User     string `mapstructure:"user" json:"user,omitempty"`
	Password string `mapstructure:"password" json:"password,omitempty"`
	DB       int    `mapstructure:"db" json:"db,omitempty"`
}

func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

type ChainConfig struct {
	RpcURL string `mapstructure:"rpc_url" json:"rpc_url,omitempty"`
	// ExecutorContract is the fixed DCA-executor contract all swaps go through.
	ExecutorContract string `mapstructure:"executor_contract" json:"executor_contract,omitempty"`
	// AmmFactory is the factory address used in the single-hop route descriptor.
	AmmFactory         string `mapstructure:"amm_factory" json:"amm_factory,omitempty"`
	OperatorPrivateKey string `mapstructure:"operator_private_key" json:"operator_private_key,omitempty"`
	// TokenInDecimals is the fixed-point precision of the input token. It is a
	// policy constant, not queried on-chain.
	TokenInDecimals int32 `mapstructure:"token_in_decimals" json:"token_in_decimals,omitempty"`
}

type FeeConfig struct {
	MaxFeePerGasGwei   int64  `mapstructure:"max_fee_per_gas_gwei" json:"max_fee_per_gas_gwei,omitempty"`
	MaxPriorityFeeGwei int64  `mapstructure:"max_priority_fee_gwei" json:"max_priority_fee_gwei,omitempty"`
	GasLimit           uint64 `mapstructure:"gas_limit" json:"gas_limit,omitempty"`
}

type EngineConfig struct {
	Concurrency      int           `mapstructure:"concurrency" json:"concurrency,omitempty"`
	ReceiptTimeout   time.Duration `mapstructure:"receipt_timeout" json:"receipt_timeout,omitempty"`
	ClaimTTL         time.Duration `mapstructure:"claim_ttl" json:"claim_ttl,omitempty"`
	PollInterval     time.Duration `mapstructure:"poll_interval" json:"poll_interval,omitempty"`
	IterationTimeout time.Duration `mapstructure:"iteration_timeout" json:"iteration_timeout,omitempty"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled,omitempty"`
	Addr    string `mapstructure:"addr" json:"addr,omitempty"`
}

func GetWorkerConfigure() (*WorkerConfig, error) {
	configName := os.Getenv("DCA_WORKER_CONFIG_NAME")
	if configName == "" {
		configName = "config"
	}
	return ReadWorkerConfig(configName)
}

func ReadWorkerConfig(configName string) (*WorkerConfig, error) {
	viper.SetConfigName(configName)
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	viper.SetDefault("engine.concurrency", 8)
	viper.SetDefault("engine.receipt_timeout", 90*time.Second)
	viper.SetDefault("engine.claim_ttl", 5*time.Minute)
	viper.SetDefault("engine.poll_interval", 60*time.Second)
	viper.SetDefault("engine.iteration_timeout", 10*time.Minute)
	viper.SetDefault("fees.gas_limit", 600_000)
	viper.SetDefault("chain.token_in_decimals", 6)
	viper.SetDefault("metrics.addr", ":9090")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("fail to reading config file, %w", err)
	}
	var cfg WorkerConfig
	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %w", err)
	}
	return &cfg, nil
}

func ReadApiConfig() (*ApiConfig, error) {
	configName := os.Getenv("DCA_API_CONFIG_NAME")
	if configName == "" {
		configName = "config"
	}
	viper.SetConfigName(configName)
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("fail to reading config file, %w", err)
	}
	var cfg ApiConfig
	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %w", err)
	}
	return &cfg, nil
}
