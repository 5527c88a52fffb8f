package main

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/dripbase/executor/config"
	"github.com/dripbase/executor/internal/chain"
	"github.com/dripbase/executor/internal/engine"
	"github.com/dripbase/executor/internal/feepolicy"
	"github.com/dripbase/executor/internal/metrics"
	"github.com/dripbase/executor/internal/storage/postgres"
	"github.com/dripbase/executor/internal/tasks"
)

func main() {
	ctx := context.Background()

	cfg, err := config.GetWorkerConfigure()
	if err != nil {
		panic(err)
	}

	logger := logrus.StandardLogger()

	redisOptions := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr(),
		Username: cfg.Redis.User,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Username: cfg.Redis.User,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		panic(fmt.Sprintf("failed to reach redis: %v", err))
	}
	if err := rdb.Close(); err != nil {
		panic(fmt.Sprintf("failed to close redis client: %v", err))
	}

	backend, err := postgres.NewBackend(ctx, logger, cfg.Database.DSN)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize database: %v", err))
	}
	defer backend.Close()

	chainClient, err := chain.NewClient(
		ctx,
		logger,
		cfg.Chain.RpcURL,
		cfg.Chain.OperatorPrivateKey,
		cfg.Chain.ExecutorContract,
	)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize chain client: %v", err))
	}

	fees, err := feepolicy.NewStatic(
		cfg.Fees.MaxFeePerGasGwei,
		cfg.Fees.MaxPriorityFeeGwei,
		cfg.Fees.GasLimit,
	)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize fee policy: %v", err))
	}

	var engineMetrics metrics.EngineMetrics
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		engineMetrics = metrics.NewPromEngineMetrics(reg)
		go func() {
			if err := metrics.Serve(logger, reg, cfg.Metrics.Addr); err != nil {
				logger.Errorf("metrics server stopped: %v", err)
			}
		}()
	}

	eng := engine.New(
		logger,
		engine.Config{
			AmmFactory:      cfg.Chain.AmmFactory,
			TokenInDecimals: cfg.Chain.TokenInDecimals,
			ReceiptTimeout:  cfg.Engine.ReceiptTimeout,
			ClaimTTL:        cfg.Engine.ClaimTTL,
			Concurrency:     cfg.Engine.Concurrency,
		},
		backend.Tx(),
		backend,
		backend,
		backend,
		chainClient,
		fees,
		engineMetrics,
	)

	srv := asynq.NewServer(
		redisOptions,
		asynq.Config{
			Logger:      logger,
			Concurrency: 1,
			Queues: map[string]int{
				tasks.QueueName: 10,
			},
		},
	)
	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeExecutionCycle, eng.HandleExecutionCycle)

	go func() {
		if err := srv.Run(mux); err != nil {
			panic(fmt.Errorf("could not run task server: %w", err))
		}
	}()

	client := asynq.NewClient(redisOptions)
	defer client.Close()

	worker := engine.NewWorker(
		logger,
		client,
		tasks.QueueName,
		cfg.Engine.PollInterval,
		cfg.Engine.IterationTimeout,
	)
	if err := worker.Run(); err != nil {
		panic(fmt.Errorf("could not run worker: %w", err))
	}
	srv.Shutdown()
}
