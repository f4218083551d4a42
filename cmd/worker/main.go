package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"plan-nat/backend/config"
	"plan-nat/backend/internal/worker"
	applogger "plan-nat/backend/pkg/logger"
	"plan-nat/backend/pkg/mailer"
	"plan-nat/backend/pkg/queue"
	"plan-nat/backend/pkg/redis"
)

func main() {
	cfg, err := config.Load(os.Getenv("PLANNAT_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.Mail.SMTPHost == "" {
		logger.Fatal("未配置 mail.smtp_host，邮件 Worker 无法启动")
	}

	// 邮件 Worker 完全依赖 Redis 队列，连接失败直接退出
	rdb, err := redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Fatal("Redis 连接失败", zap.Error(err))
	}
	defer rdb.Close()

	q := queue.NewQueue(rdb.Raw(), cfg.Enrollment.NotifyQueue, logger)
	sender := mailer.NewSMTPSender(cfg.Mail, logger)
	w := worker.NewMailWorker(q, sender, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("邮件 Worker 已启动",
		zap.String("queue", cfg.Enrollment.NotifyQueue),
		zap.String("smtp_host", cfg.Mail.SMTPHost),
	)
	w.Run(ctx)
	logger.Info("邮件 Worker 已退出")
}
