package main

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/dripbase/executor/config"
	"github.com/dripbase/executor/internal/api"
	"github.com/dripbase/executor/internal/storage/postgres"
)

func main() {
	ctx := context.Background()

	cfg, err := config.ReadApiConfig()
	if err != nil {
		panic(err)
	}

	logger := logrus.StandardLogger()

	backend, err := postgres.NewBackend(ctx, logger, cfg.Database.DSN)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize database: %v", err))
	}
	defer backend.Close()

	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr(),
		Username: cfg.Redis.User,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer client.Close()

	server := api.NewServer(*cfg, logger, backend, client)
	if err := server.StartServer(); err != nil {
		panic(fmt.Errorf("could not run api server: %w", err))
	}
}
