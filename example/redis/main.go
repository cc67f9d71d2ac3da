package main

import (
	"context"
	"net/http"
	"time"

	ankylogate "github.com/arryllopez/ankyloGate"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// EXAMPLE REPORTING DECISIONS TO REDIS AND KAFKA
// Limiter state stays in memory, Redis and Kafka only receive the decisions.
func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// Make sure Redis is running: docker run -d -p 6379:6379 redis:latest
	redisClient := redis.NewClient(&redis.Options{
		Addr:     "localhost:6379",
		Password: "",
		DB:       0,
	})

	ctx := context.Background()
	if _, err := redisClient.Ping(ctx).Result(); err != nil {
		logger.Fatal("connect to redis", zap.Error(err))
	}
	logger.Info("connected to redis")

	kafkaClient, err := kgo.NewClient(
		kgo.SeedBrokers("localhost:9092"),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		logger.Fatal("create kafka client", zap.Error(err))
	}
	defer kafkaClient.Close()

	config := ankylogate.DefaultConfig()
	config.Policy = ankylogate.PolicyTokenBucket
	config.Capacity = 10
	config.TokensPerInterval = 1
	config.RefillRate = time.Second

	limiter, err := ankylogate.New(config)
	if err != nil {
		logger.Fatal("build limiter", zap.Error(err))
	}

	stats := ankylogate.NewRedisStats(redisClient, ankylogate.WithStatsLogger(logger))
	events := ankylogate.NewKafkaPublisher(kafkaClient, "rate-limit-events", logger)
	tracked := ankylogate.NewTrackedLimiter(limiter, config.Policy, stats, events)

	router := gin.Default()
	router.Use(ankylogate.RateLimiterMiddleware(tracked, ankylogate.MiddlewareConfig{Logger: logger}))

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Hello! Your requests are counted in Redis and Kafka.",
		})
	})

	router.GET("/stats", func(c *gin.Context) {
		totals, err := stats.Totals(c.Request.Context(), config.Policy)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		top, err := stats.TopDenied(c.Request.Context(), config.Policy, 10)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"totals": totals, "top_denied": top})
	})

	logger.Info("server starting", zap.String("addr", ":8080"))
	if err := router.Run(":8080"); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
