package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	ankylogate "github.com/arryllopez/ankyloGate"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	metrics, err := ankylogate.NewMetrics(ankylogate.MetricsOptions{Registerer: prometheus.DefaultRegisterer})
	if err != nil {
		logger.Fatal("register metrics", zap.Error(err))
	}

	// one message per user every 10 seconds
	window, err := ankylogate.NewSlidingWindowLimiter(ankylogate.SlidingWindowConfig{
		Window:      10 * time.Second,
		MaxRequests: 1,
	})
	if err != nil {
		logger.Fatal("build sliding window", zap.Error(err))
	}
	// logins are throttled harder
	login, err := ankylogate.NewFixedIntervalThrottle(ankylogate.FixedIntervalConfig{MinInterval: 30 * time.Second})
	if err != nil {
		logger.Fatal("build login throttle", zap.Error(err))
	}

	for policy, sizer := range map[ankylogate.Policy]ankylogate.Sizer{
		ankylogate.PolicySlidingWindow: window,
		ankylogate.PolicyFixedInterval: login,
	} {
		if err := metrics.WatchIdentities(policy, sizer); err != nil {
			logger.Fatal("watch identities", zap.Error(err))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ankylogate.StartJanitor(ctx, window, ankylogate.SystemClock, time.Minute)
	ankylogate.StartJanitor(ctx, login, ankylogate.SystemClock, time.Minute)

	router := gin.New()
	// LoggerWithFormatter middleware will write the logs to gin.DefaultWriter
	router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s\"\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
		)
	}))
	router.Use(gin.Recovery())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	limited := router.Group("/")
	limited.Use(ankylogate.RateLimiterMiddleware(
		ankylogate.NewTrackedLimiter(window, ankylogate.PolicySlidingWindow, metrics),
		ankylogate.MiddlewareConfig{KeyFunc: ankylogate.HeaderKey("X-User-ID"), Logger: logger},
		map[string]ankylogate.RateLimiter{
			"POST /login": ankylogate.NewTrackedLimiter(login, ankylogate.PolicyFixedInterval, metrics).ForEndpoint("POST /login"),
		},
	))

	limited.POST("/messages", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "message sent"})
	})
	limited.POST("/login", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "login successful"})
	})

	logger.Info("server starting", zap.String("addr", ":8080"))
	if err := router.Run(":8080"); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
