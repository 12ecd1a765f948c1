package client

import (
	"context"
	"time"

	"labreserve/pkg/logger"
)

// Client bundles the external connections the service depends on.
type Client struct {
	Mongo *MongoClient
	Redis *RedisClient

	log *logger.Logger
}

func NewClient() *Client {
	return &Client{}
}

func (c *Client) SetMongo(log *logger.Logger, mongoURI string, mongoConnTimeout time.Duration) {
	c.log = log
	c.Mongo = NewMongoClient(log, mongoURI, mongoConnTimeout)
}

func (c *Client) SetRedis(log *logger.Logger, addr, password string, db int, connTimeout time.Duration) {
	c.log = log
	c.Redis = NewRedisClient(log, addr, password, db, connTimeout)
}

func (c *Client) GracefulShutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if c.Mongo != nil {
		if err := c.Mongo.Client.Disconnect(ctx); err != nil && c.log != nil {
			c.log.Error("Failed to disconnect from MongoDB", "error", err)
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Client.Close(); err != nil && c.log != nil {
			c.log.Error("Failed to close Redis connection", "error", err)
		}
	}
}
