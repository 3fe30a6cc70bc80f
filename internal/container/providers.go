package container

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/application/resolver"
	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/application/workflow"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/export"
	"github.com/garyjia/expense-approval/internal/infrastructure/external/currency"
	infraLark "github.com/garyjia/expense-approval/internal/infrastructure/external/lark"
	"github.com/garyjia/expense-approval/internal/infrastructure/lock"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/expense-approval/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	Conn           *database.DB
	TransactionMgr *sqlite.DB
}

// LockBundle holds the expense locker and, when distributed, its closer.
type LockBundle struct {
	Locker port.Locker
	Redis  *lock.RedisLocker
}

// CurrencyBundle holds the external currency clients.
type CurrencyBundle struct {
	Converter port.CurrencyConverter
	Countries port.CountryResolver
}

// ProvideDatabase opens the SQLite database, applies the embedded migrations
// and wraps the connection in a transaction manager.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	conn, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(conn, logger).Migrate(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		Conn:           conn,
		TransactionMgr: sqlite.NewDB(conn.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(conn *database.DB, logger *zap.Logger) (*workflow.Repositories, error) {
	if conn == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &workflow.Repositories{
		Companies: repository.NewCompanyRepository(conn.DB, logger),
		Employees: repository.NewEmployeeRepository(conn.DB, logger),
		Expenses:  repository.NewExpenseRepository(conn.DB, logger),
		Approvals: repository.NewApprovalRepository(conn.DB, logger),
		Workflows: repository.NewWorkflowRepository(conn.DB, logger),
	}, nil
}

// ProvideLocker creates the Redis locker when enabled, otherwise a process-local one.
func ProvideLocker(ctx context.Context, cfg *LockConfig, logger *zap.Logger) (*LockBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("lock config is required")
	}

	if !cfg.Redis {
		logger.Info("Using process-local expense locks")
		return &LockBundle{Locker: lock.NewLocalLocker()}, nil
	}

	redisLocker, err := lock.NewRedisLocker(ctx, lock.RedisConfig{
		Addr:      cfg.RedisAddr,
		Password:  cfg.RedisPassword,
		DB:        cfg.RedisDB,
		TTL:       cfg.TTL,
		KeyPrefix: cfg.KeyPrefix,
	}, logger)
	if err != nil {
		return nil, err
	}

	return &LockBundle{Locker: redisLocker, Redis: redisLocker}, nil
}

// ProvideCurrencyClients creates the exchange rate and country clients.
func ProvideCurrencyClients(cfg *CurrencyConfig, logger *zap.Logger) (*CurrencyBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("currency config is required")
	}

	clientCfg := currency.Config{
		RatesBaseURL:      cfg.RatesBaseURL,
		CountriesBaseURL:  cfg.CountriesBaseURL,
		Timeout:           cfg.Timeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		MaxFailures:       cfg.MaxFailures,
		OpenTimeout:       cfg.OpenTimeout,
	}

	return &CurrencyBundle{
		Converter: currency.NewRatesClient(clientCfg, logger),
		Countries: currency.NewCountriesClient(clientCfg, logger),
	}, nil
}

// ProvideNotifier creates the Lark notifier when enabled, otherwise a notifier that only logs.
func ProvideNotifier(cfg *LarkConfig, logger *zap.Logger) (port.ApproverNotifier, error) {
	if cfg == nil {
		return nil, fmt.Errorf("lark config is required")
	}

	if !cfg.Enabled {
		logger.Info("Lark disabled, approver notifications will only be logged")
		return &logNotifier{logger: logger}, nil
	}

	sdkClient := infraLark.NewSDKClient(infraLark.Config{
		AppID:     cfg.AppID,
		AppSecret: cfg.AppSecret,
		BaseURL:   cfg.BaseURL,
	}, logger)

	return infraLark.NewNotifier(sdkClient, logger), nil
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return dispatcher.NewDispatcher(dispatcher.WithLogger(&zapLoggerAdapter{logger: logger})), nil
}

// WorkflowDeps holds dependencies required for creating the workflow engine.
type WorkflowDeps struct {
	Repos      *workflow.Repositories
	TxManager  port.TransactionManager
	Locker     port.Locker
	Dispatcher dispatcher.Dispatcher
	Logger     *zap.Logger
}

// ProvideWorkflowEngine creates the workflow engine publishing to the dispatcher.
func ProvideWorkflowEngine(deps *WorkflowDeps) (workflow.WorkflowEngine, error) {
	if deps == nil || deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Locker == nil {
		return nil, fmt.Errorf("locker is required")
	}

	return workflow.NewEngine(
		*deps.Repos,
		resolver.New(deps.Repos.Employees),
		deps.TxManager,
		deps.Locker,
		workflow.WithDispatcher(deps.Dispatcher),
		workflow.WithLogger(&zapLoggerAdapter{logger: deps.Logger}),
	), nil
}

// ServiceDeps holds dependencies required for creating services.
type ServiceDeps struct {
	Repos      *workflow.Repositories
	TxManager  port.TransactionManager
	Engine     workflow.WorkflowEngine
	Currency   *CurrencyBundle
	Notifier   port.ApproverNotifier
	Dispatcher dispatcher.Dispatcher
	Logger     *zap.Logger
}

// ProvideServices creates all application services and subscribes the
// notification service to the dispatcher.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Currency == nil {
		return nil, fmt.Errorf("currency clients are required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	serviceLogger := &zapLoggerAdapter{logger: deps.Logger}

	notifications := service.NewNotificationService(
		deps.Repos.Approvals,
		deps.Repos.Expenses,
		deps.Repos.Employees,
		deps.Notifier,
		serviceLogger,
	)
	if deps.Dispatcher != nil {
		notifications.Register(deps.Dispatcher)
	}

	return &ServiceBundle{
		Company: service.NewCompanyService(
			deps.Repos.Companies,
			deps.Repos.Employees,
			deps.Repos.Workflows,
			deps.Currency.Countries,
			deps.TxManager,
			serviceLogger,
		),
		Expense: service.NewExpenseService(
			deps.Engine,
			*deps.Repos,
			deps.Currency.Converter,
			export.NewXLSXExporter(deps.Logger),
			serviceLogger,
		),
		Workflow: service.NewWorkflowService(
			deps.Repos.Workflows,
			deps.Repos.Employees,
			serviceLogger,
		),
		Notification: notifications,
	}, nil
}

// logNotifier stands in for Lark when messaging is disabled
type logNotifier struct {
	logger *zap.Logger
}

func (n *logNotifier) NotifyApprovalRequested(_ context.Context, approver *entity.Employee, expense *entity.Expense, record *entity.ApprovalRecord) error {
	n.logger.Info("Approval requested",
		zap.Int64("approver_id", approver.ID),
		zap.String("approver_email", approver.Email),
		zap.Int64("expense_id", expense.ID),
		zap.Int64("record_id", record.ID),
		zap.Int("step", record.Step))
	return nil
}
