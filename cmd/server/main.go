package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"pointsystem/internal/config"
	"pointsystem/internal/handler"
	"pointsystem/internal/infrastructure/cache"
	"pointsystem/internal/infrastructure/database"
	"pointsystem/internal/infrastructure/lock"
	"pointsystem/internal/infrastructure/mq"
	"pointsystem/internal/job"
	"pointsystem/internal/repository"
	"pointsystem/internal/service"
	"pointsystem/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	gen, err := idgen.NewGenerator(cfg.Point.WorkerID)
	if err != nil {
		log.Fatalf("初始化 ID 生成器失败: %v", err)
	}

	db, err := database.InitMySQL(&cfg.MySQL)
	if err != nil {
		log.Fatalf("初始化 MySQL 失败: %v", err)
	}
	store := repository.NewGormStore(db)

	// 只有 redis 锁策略需要 Redis
	var rdb *redis.Client
	if cfg.Point.LockStrategy == lock.StrategyRedis {
		rdb, err = cache.InitRedis(&cfg.Redis)
		if err != nil {
			log.Fatalf("初始化 Redis 失败: %v", err)
		}
		defer rdb.Close()
	}

	locker, err := lock.New(cfg.Point.LockStrategy, rdb, gen)
	if err != nil {
		log.Fatalf("初始化锁失败: %v", err)
	}
	if cfg.Point.LockStrategy == lock.StrategyKeyed || cfg.Point.LockStrategy == lock.StrategyGlobal {
		log.Printf("警告: 锁策略 %s 只在单实例部署时正确，多实例请使用 row 或 redis", cfg.Point.LockStrategy)
	}

	pointService := service.NewPointService(store, locker, gen, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Kafka.Topic.PointChanged != "" {
		producer, err := mq.InitKafka(&cfg.Kafka)
		if err != nil {
			log.Fatalf("初始化 Kafka 失败: %v", err)
		}
		defer producer.Close()

		outboxSender := job.NewOutboxSender(store.Outbox(), producer, cfg.Business.MaxRetryCount)
		g.Go(func() error {
			outboxSender.Start(gctx)
			return nil
		})
	}

	reconcileJob := job.NewReconcileJob(store, cfg.Business.ReconcileInterval())
	g.Go(func() error {
		reconcileJob.Start(gctx)
		return nil
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: handler.SetupRouter(pointService),
	}

	g.Go(func() error {
		log.Printf("服务启动，监听端口: %d, 锁策略: %s", cfg.Server.Port, cfg.Point.LockStrategy)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("服务启动失败: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Println("正在关闭服务...")

		// 关闭 HTTP 服务（等待最多5秒）
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Printf("服务异常退出: %v", err)
	}
	log.Println("服务已关闭")
}
