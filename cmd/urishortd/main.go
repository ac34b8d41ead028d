package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/matgreaves/run"
	"github.com/redis/go-redis/v9"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/matgreaves/urishort/internal/config"
	"github.com/matgreaves/urishort/internal/dataservice"
	"github.com/matgreaves/urishort/internal/httpclient"
	"github.com/matgreaves/urishort/internal/httpserver"
	"github.com/matgreaves/urishort/internal/observability"
	"github.com/matgreaves/urishort/internal/pipeline"
	"github.com/matgreaves/urishort/internal/resolver"
	"github.com/matgreaves/urishort/internal/shedder"
	"github.com/matgreaves/urishort/internal/shortener"
)

func main() {
	configPath := flag.String("config", "", "path to bootstrap/runtime config JSON (required)")
	redisAddr := flag.String("resolver-redis-addr", "", "Redis address for service resolution (default: embedded in-process data service)")
	flag.Parse()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "urishortd: -config is required")
		os.Exit(1)
	}

	f, err := os.Open(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "urishortd: open config: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load(f)
	f.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "urishortd: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := observability.NewProvider(ctx, observability.Config{
		ServiceName:  cfg.Bootstrap.Service.Name,
		OTLPEndpoint: cfg.Bootstrap.Observability.OTLPEndpoint,
		ConsoleLogs:  cfg.Bootstrap.Observability.LoggingEnabled,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "urishortd: observability: %v\n", err)
		os.Exit(1)
	}
	log := provider.Logger()

	var res resolver.ServiceResolver
	var embeddedDataService *http.Server
	if *redisAddr != "" {
		res = resolver.NewRedis(redis.NewClient(&redis.Options{Addr: *redisAddr}), "")
	} else {
		static := resolver.NewStatic()
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			fmt.Fprintf(os.Stderr, "urishortd: embedded data service listen: %v\n", err)
			os.Exit(1)
		}
		host, portStr, _ := net.SplitHostPort(ln.Addr().String())
		port, _ := strconv.Atoi(portStr)
		static.Register("links", resolver.Endpoint{Host: host, Port: port})
		res = static

		store := shortener.NewStore()
		embeddedDataService = &http.Server{
			Handler: h2c.NewHandler(shortener.Handler(store, "/api/v1/links"), &http2.Server{}),
		}
		go func() {
			if err := embeddedDataService.Serve(ln); err != nil && err != http.ErrServerClosed {
				log.Error("embedded data service serve error", "err", err)
			}
		}()
		log.Info("urishortd: using embedded in-process data service", "addr", ln.Addr())
	}

	httpCfg := httpclient.Config{
		ConnectTimeout: time.Duration(cfg.Bootstrap.DataService.Client.ConnectTimeoutMs) * time.Millisecond,
		RequestTimeout: time.Duration(cfg.Bootstrap.DataService.Client.RequestTimeoutMs) * time.Millisecond,
		AllowHTTP:      true,
		Provider:       provider,
	}
	clientRegistry := httpclient.NewRegistry(httpCfg)
	adapter := dataservice.New(dataservice.Config{ServiceName: "links", Provider: provider}, res, clientRegistry)

	sh := shedder.New(int64(cfg.Runtime.LoadShedder.MaxConcurrentRequests))
	exec, pl := pipeline.NewExecutor(cfg.Bootstrap.Execution.PoolExecutor.NumWorkers, sh, adapter, provider)

	srv := httpserver.New(httpserver.Config{Addr: cfg.Bootstrap.Server.URI}, pl, provider)

	startup := run.Func(func(ctx context.Context) error {
		exec.Start()
		if err := srv.Start(); err != nil {
			return fmt.Errorf("start httpserver: %w", err)
		}
		log.Info("urishortd listening", "addr", srv.Addr())
		return nil
	})

	serving := run.Sequence{startup, run.Idle}

	shutdown := func() {
		log.Info("urishortd: shutting down")
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Stop(shutCtx); err != nil {
			log.Error("httpserver stop", "err", err)
		}
		if err := exec.Stop(); err != nil {
			log.Error("executor stop", "err", err)
		}
		if err := clientRegistry.Close(); err != nil {
			log.Error("client registry close", "err", err)
		}
		if embeddedDataService != nil {
			_ = embeddedDataService.Shutdown(shutCtx)
		}
		if err := provider.Shutdown(shutCtx); err != nil {
			log.Error("observability shutdown", "err", err)
		}
	}

	err = serving.Run(ctx)
	shutdown()
	if err != nil && ctx.Err() == nil {
		log.Error("urishortd exited with error", "err", err)
		os.Exit(1)
	}
}
