package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/zap"

	"trade-executor-go/config"
	"trade-executor-go/engine"
	"trade-executor-go/gateway"
	"trade-executor-go/ident"
	"trade-executor-go/infrastructure/alert"
	"trade-executor-go/infrastructure/logger"
	"trade-executor-go/metrics"
	"trade-executor-go/order"
	"trade-executor-go/position"
	"trade-executor-go/posttrade"
	"trade-executor-go/transport"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	dryRun := flag.Bool("dryRun", false, "只校验订单，不真实成交")
	maxIterations := flag.Int("maxIterations", 0, "最多处理的循环数，0 为不限")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if err := config.ValidateParams(cfg); err != nil {
		log.Fatalf("配置参数非法: %v", err)
	}

	lg, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		Outputs: []string{"stdout"},
		Format:  cfg.Logging.Encoding,
	})
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer lg.Close()
	zlog := lg.Logger

	if cfg.Metrics.Addr != "" {
		go metrics.StartMetricsServer(cfg.Metrics.Addr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	creds, err := gateway.LoadCredentials(cfg.Gateway.KeyPath)
	if err != nil {
		zlog.Fatal("加载交易所凭证失败", zap.Error(err))
	}
	var limiter gateway.RateLimiter = gateway.NewDecayCounter()
	if cfg.Gateway.Limiter == "token" {
		limiter = gateway.NewTokenBucketLimiter(cfg.Gateway.RatePerSec, cfg.Gateway.Burst)
	}
	client := &gateway.KrakenRESTClient{
		BaseURL:    cfg.Gateway.BaseURL,
		Creds:      creds,
		HTTPClient: gateway.NewDefaultHTTPClient(),
		Limiter:    limiter,
		Policy:     gateway.DefaultRetryPolicy(),
		Log:        zlog.Named("gateway"),
	}
	prices := gateway.NewTickerSource(cfg.Gateway.BaseURL)

	// 凭证轮换：文件被外部工具替换时重新加载
	go func() {
		w := config.Watcher{Path: cfg.Gateway.KeyPath}
		err := w.Start(ctx, func() {
			if err := creds.Reload(); err != nil {
				zlog.Warn("凭证重载失败", zap.Error(err))
				return
			}
			zlog.Info("凭证已轮换")
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			zlog.Warn("凭证监听退出", zap.Error(err))
		}
	}()

	fees, err := client.TradeVolume(ctx)
	if err != nil {
		zlog.Fatal("加载费率表失败", zap.Error(err))
	}
	if balance, err := client.Balance(ctx); err != nil {
		zlog.Warn("查询余额失败", zap.Error(err))
	} else {
		zlog.Info("账户余额", zap.Any("balance", balance))
	}

	idStore, err := ident.NewFileStore(cfg.Executor.IDStatePath)
	if err != nil {
		zlog.Fatal("打开 id 状态文件失败", zap.Error(err))
	}
	var alloc engine.IDAllocator
	if cfg.Executor.IDScheme == "counter" {
		alloc, err = ident.NewCounterAllocator(idStore, 2)
	} else {
		alloc, err = ident.NewTimeAllocator(idStore, 3)
	}
	if err != nil {
		zlog.Fatal("初始化 id 分配器失败", zap.Error(err))
	}

	deps := order.Deps{API: client, Prices: prices, Log: zlog.Named("order")}
	coll, err := order.Load(cfg.Executor.SnapshotPath, deps)
	if err != nil {
		zlog.Fatal("恢复订单快照失败", zap.Error(err))
	}

	placer := &engine.Placer{
		API:          client,
		Prices:       prices,
		Alloc:        alloc,
		Orders:       coll,
		StrategyID:   cfg.Executor.StrategyID,
		Tolerance:    cfg.Executor.Tolerance,
		ValidateOnly: *dryRun,
		PollInterval: cfg.Executor.PollInterval(),
		Log:          zlog.Named("placer"),
	}
	manager := position.NewManager(placer, prices, fees, zlog.Named("position"))

	var channel transport.Channel
	switch cfg.Signals.Mode {
	case "listen":
		server := transport.NewServer(cfg.Signals.Buffer, zlog.Named("signals"))
		httpServer := &http.Server{Addr: cfg.Signals.ListenAddr, Handler: server}
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				zlog.Error("信号服务退出", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = httpServer.Shutdown(shutdownCtx)
		}()
		channel = server
	case "dial":
		channel = transport.DialChannel(cfg.Signals.URL, zlog.Named("signals"))
	}
	defer channel.Close()

	var journal *posttrade.Journal
	if cfg.Executor.JournalPath != "" {
		journal, err = posttrade.OpenJournal(cfg.Executor.JournalPath)
		if err != nil {
			zlog.Fatal("打开执行回报日志失败", zap.Error(err))
		}
		defer journal.Close()
	}
	alerts := alert.NewManager([]alert.Channel{
		alert.NewZapChannel("log", zlog.Named("alert")),
	}, time.Minute)

	iterations := cfg.Executor.MaxIterations
	if *maxIterations > 0 {
		iterations = *maxIterations
	}
	eng := &engine.Engine{
		Channel:       channel,
		Orders:        coll,
		Position:      manager,
		Log:           zlog.Named("engine"),
		Events:        lg,
		Journal:       journal,
		Alerts:        alerts,
		SnapshotPath:  cfg.Executor.SnapshotPath,
		StatePath:     cfg.Executor.StatePath,
		MaxIterations: iterations,
	}
	if err := eng.Restore(ctx); err != nil {
		zlog.Fatal("恢复执行状态失败", zap.Error(err))
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	zlog.Info("执行进程启动",
		zap.String("pair", cfg.Executor.Pair),
		zap.Int("strategyID", cfg.Executor.StrategyID),
		zap.Bool("dryRun", *dryRun))

	err = eng.Run(ctx)
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil && !errors.Is(err, context.Canceled) {
		lg.LogError(err, map[string]interface{}{"phase": "run"})
		lg.Close()
		os.Exit(1)
	}
	zlog.Info("执行进程退出")
}
