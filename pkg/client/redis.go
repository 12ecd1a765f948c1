package client

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"labreserve/pkg/logger"
)

type RedisClient struct {
	Client *redis.Client
}

func NewRedisClient(log *logger.Logger, addr, password string, db int, connTimeout time.Duration) *RedisClient {
	ctx, cancel := context.WithTimeout(context.Background(), connTimeout)
	defer cancel()

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("Failed to ping Redis",
			"error", err,
			"addr", addr,
		)
	}

	log.Info("Successfully connected to Redis")
	return &RedisClient{Client: client}
}
