package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"orchestrator-api/internal/buckets"
	"orchestrator-api/internal/catalog"
	"orchestrator-api/internal/clients"
	"orchestrator-api/internal/config"
	"orchestrator-api/internal/middleware"
	"orchestrator-api/internal/orchestrator"
	"orchestrator-api/internal/routers"
	"orchestrator-api/internal/shared"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	emw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/manifold-inc/manifold-sdk/lib/eflag"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Flags / ENV Variables
	configPath := flag.String("config", "config.yaml", "Client config file")
	writeDSN := flag.String("dsn", "", "Write vitess DSN, enables dispatch stats")
	readDSN := flag.String("read-dsn", "", "Read vitess DSN, enables the client catalog")
	redisAddr := flag.String("redis-addr", "", "Redis host:port for the client catalog cache")
	metricsAPIKey := flag.String("metrics-api-key", "", "Metrics api key")
	listenAddr := flag.String("listen-addr", ":80", "Address to serve on")
	debug := flag.Bool("debug", false, "Debug enabled")

	err := eflag.SetFlagsFromEnvironment()
	if err != nil {
		panic(err)
	}
	flag.Parse()

	var logger *zap.Logger
	if !*debug {
		logger, err = zap.NewProduction()
		if err != nil {
			panic("Failed init logger")
		}
	}
	if *debug {
		logger, err = zap.NewDevelopment()
		if err != nil {
			panic("Failed init logger")
		}
	}
	log := logger.Sugar()
	defer func() {
		_ = log.Sync()
	}()

	cfg := config.New()
	if _, statErr := os.Stat(*configPath); statErr == nil {
		cfg, err = config.Load(*configPath)
		if err != nil {
			panic(err)
		}
	} else {
		log.Warnw("No client config file, relying on catalog", "path", *configPath)
	}

	// Read db + redis for the client catalog
	var readDB *sql.DB
	var redisClient *redis.Client
	if *readDSN != "" {
		readDB, err = sql.Open("mysql", *readDSN)
		if err != nil {
			panic(fmt.Sprintf("failed initializing readSqlClient: %s", err))
		}
		err = readDB.Ping()
		if err != nil {
			panic(fmt.Sprintf("failed to ping read replica sql db: %s", err))
		}
		if *redisAddr != "" {
			redisClient = redis.NewClient(&redis.Options{
				Addr:     *redisAddr,
				Password: "",
				DB:       0,
			})
			if err := redisClient.Ping(context.Background()).Err(); err != nil {
				panic(fmt.Sprintf("failed ping to redis db: %s", err))
			}
		}
		if _, err := catalog.New(readDB, redisClient, log).Apply(context.Background(), cfg); err != nil {
			panic(fmt.Sprintf("failed loading client catalog: %s", err))
		}
	}

	// Write db for dispatch stats
	var writeDB *sql.DB
	var recorder orchestrator.Recorder
	var stats *buckets.StatsCache
	if *writeDSN != "" {
		writeDB, err = sql.Open("mysql", *writeDSN)
		if err != nil {
			panic(fmt.Sprintf("failed initializing sqlClient: %s", err))
		}
		err = writeDB.Ping()
		if err != nil {
			panic(fmt.Sprintf("failed ping to sql db: %s", err))
		}
		stats = buckets.NewStatsCache(log, writeDB)
		recorder = stats
	}

	defer func() {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		if writeDB != nil {
			_ = writeDB.Close()
		}
		if readDB != nil {
			_ = readDB.Close()
		}
	}()

	registry, err := clients.BuildRegistry(cfg, log)
	if err != nil {
		panic(err)
	}
	for _, entry := range registry.Entries() {
		log.Infow("Registered client", "client_kind", entry.Kind, "client_name", entry.Name)
	}
	orch := orchestrator.New(registry, cfg, log, recorder)

	e := echo.New()
	e.HideBanner = true
	e.GET(("/ping"), func(c echo.Context) error {
		return c.String(200, "")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()), middleware.NewAPIKeyMiddleware(*metricsAPIKey))

	base := e.Group("")
	base.Use(emw.CORS())
	base.Use(middleware.NewRecoverMiddleware(log))
	base.Use(middleware.NewTrackMiddleware(log))

	routers.RegisterHealthRoutes(base, registry)
	routers.RegisterTaskRoutes(base, orch)

	go func() {
		if err := e.Start(*listenAddr); err != nil && err != http.ErrServerClosed {
			e.Logger.Fatal("shutting down the server")
		}
	}()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), shared.DefaultShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Errorw("Failed graceful shutdown", "error", err)
	}
	if stats != nil {
		stats.Shutdown()
	}
}
