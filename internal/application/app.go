package application

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/chatmirror/gateway/internal/domain/repository"
	"github.com/chatmirror/gateway/internal/domain/service"
	infchannel "github.com/chatmirror/gateway/internal/infrastructure/channel"
	"github.com/chatmirror/gateway/internal/infrastructure/channel/bridge"
	"github.com/chatmirror/gateway/internal/infrastructure/config"
	"github.com/chatmirror/gateway/internal/infrastructure/monitoring"
	"github.com/chatmirror/gateway/internal/infrastructure/persistence"
	httpServer "github.com/chatmirror/gateway/internal/interfaces/http"
	"github.com/chatmirror/gateway/pkg/safego"
)

// App 应用程序
type App struct {
	// 配置
	config *config.Config
	logger *zap.Logger
	db     *gorm.DB

	// 仓储层
	messageRepo repository.MessageRepository
	tagRepo     repository.TagRepository

	// 领域服务
	monitor        *monitoring.Monitor
	ingestor       *service.Ingestor
	backfill       *service.BackfillOrchestrator
	queryService   *service.QueryService
	sessionManager *service.SessionManager
	tuningWatcher  *service.TuningWatcher

	// 基础设施
	credStore    *infchannel.FileCredentialStore
	bridgeClient *bridge.Client
	httpServer   *httpServer.Server

	// 运行期
	cancel context.CancelFunc
}

// NewApp 创建应用程序（依赖注入容器）
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	// Bootstrap: ensure ~/.chatmirror/ exists with default files on first run
	if err := config.Bootstrap(logger); err != nil {
		logger.Warn("Bootstrap failed (non-fatal)", zap.Error(err))
	}

	app := &App{
		config: cfg,
		logger: logger,
	}

	// 初始化各层组件
	if err := app.initRepositories(); err != nil {
		return nil, fmt.Errorf("failed to init repositories: %w", err)
	}

	if err := app.initDomainServices(); err != nil {
		return nil, fmt.Errorf("failed to init domain services: %w", err)
	}

	if err := app.initInterfaces(); err != nil {
		return nil, fmt.Errorf("failed to init interfaces: %w", err)
	}

	return app, nil
}

// initRepositories 初始化仓储层
func (a *App) initRepositories() error {
	db, err := persistence.NewDBConnection(&a.config.Database)
	if err != nil {
		return err
	}
	a.db = db
	a.messageRepo = persistence.NewGormMessageRepository(db)
	a.tagRepo = persistence.NewGormTagRepository(db)
	return nil
}

// initDomainServices 初始化领域服务
func (a *App) initDomainServices() error {
	a.monitor = monitoring.NewMonitor(a.logger)
	a.ingestor = service.NewIngestor(a.messageRepo, a.monitor, a.logger)

	a.backfill = service.NewBackfillOrchestrator(service.BackfillConfig{
		Concurrency:        a.config.Backfill.Concurrency,
		PageSize:           a.config.Backfill.PageSize,
		MaxPerConversation: a.config.Backfill.MaxPerConversation,
		ListRetries:        a.config.Backfill.ListRetries,
		ListRetryDelay:     a.config.Backfill.ListRetryDelay,
	}, a.ingestor, a.monitor, a.logger)

	a.queryService = service.NewQueryService(service.QueryConfig{
		DefaultLimit: a.config.Query.DefaultLimit,
		MaxLimit:     a.config.Query.MaxLimit,
	}, a.messageRepo, a.tagRepo, a.logger)

	credStore, err := infchannel.NewFileCredentialStore(a.config.Bridge.StateDir)
	if err != nil {
		return err
	}
	a.credStore = credStore

	a.bridgeClient = bridge.NewClient(bridge.Config{
		URL:            a.config.Bridge.URL,
		Token:          a.config.Bridge.Token,
		HandshakeWait:  a.config.Bridge.HandshakeWait,
		CallTimeout:    a.config.Bridge.CallTimeout,
		EventBufferLen: a.config.Bridge.EventBufferLen,
	}, a.logger)

	a.sessionManager = service.NewSessionManager(service.SessionManagerConfig{
		Slots:          a.config.Slots,
		ReconnectDelay: a.config.Session.ReconnectDelay,
	}, a.bridgeClient, a.credStore, a.ingestor, a.backfill, a.monitor, a.logger)

	a.tuningWatcher = service.NewTuningWatcher(config.Path(), a.queryService, a.backfill, a.logger)
	return nil
}

// initInterfaces 初始化接口层
func (a *App) initInterfaces() error {
	a.httpServer = httpServer.NewServer(httpServer.Config{
		Host:         a.config.Gateway.Host,
		Port:         a.config.Gateway.Port,
		Mode:         a.config.Gateway.Mode,
		AllowOrigins: a.config.Gateway.AllowOrigins,
	}, a.sessionManager, a.queryService, a.monitor, a.logger)
	return nil
}

// Start 启动应用程序
func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if err := a.httpServer.Start(runCtx); err != nil {
		cancel()
		return err
	}

	a.sessionManager.Start(runCtx)
	safego.Go(a.logger, "tuning-watcher", a.tuningWatcher.Start)

	a.logger.Info("Chatmirror gateway started",
		zap.Strings("slots", a.config.Slots),
		zap.String("database", a.config.Database.Type),
	)
	return nil
}

// Stop 停止应用程序
func (a *App) Stop(ctx context.Context) error {
	a.logger.Info("Stopping application")

	a.tuningWatcher.Stop()
	if a.cancel != nil {
		a.cancel()
	}

	// 等会话循环退出，但不超过调用方给的期限
	done := make(chan struct{})
	go func() {
		a.sessionManager.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.logger.Warn("Session loops did not stop before deadline")
	}

	return a.httpServer.Stop(ctx)
}

// Logger 返回日志实例
func (a *App) Logger() *zap.Logger {
	return a.logger
}
