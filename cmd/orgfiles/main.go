// Точка входа Orgfiles — сервис файлов с доступом по оргструктуре.
// Загружает конфигурацию, подключается к PostgreSQL, применяет миграции,
// инициализирует объектное хранилище, сервисный слой и API handlers,
// запускает topologymetrics, HTTP-сервер с JWT middleware и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/orgfiles/internal/api/handlers"
	"github.com/bigkaa/orgfiles/internal/api/middleware"
	"github.com/bigkaa/orgfiles/internal/config"
	"github.com/bigkaa/orgfiles/internal/database"
	"github.com/bigkaa/orgfiles/internal/repository"
	"github.com/bigkaa/orgfiles/internal/server"
	"github.com/bigkaa/orgfiles/internal/service"
	"github.com/bigkaa/orgfiles/internal/storage"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Orgfiles запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("OF_DEPHEALTH_GROUP") == "" {
		logger.Warn("OF_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode).
	// Проверка здоровья PostgreSQL идёт через существующий пул соединений,
	// что позволяет обнаружить его исчерпание.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Объектное хранилище (MinIO)
	blobStore, err := storage.NewFromConfig(cfg, logger)
	if err != nil {
		logger.Error("Ошибка создания клиента хранилища", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Клиент объектного хранилища создан",
		slog.String("endpoint", cfg.MinioEndpoint),
		slog.String("bucket", cfg.MinioBucket),
	)

	// 6. Repositories
	buRepo := repository.NewBusinessUnitRepository(pool)
	fnRepo := repository.NewFunctionRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	fileRepo := repository.NewFileRepository(pool)
	fileTxStore := repository.NewFileTxStore(repository.NewTxRunner(pool))

	// 7. Services
	orgSvc := service.NewOrgService(buRepo, fnRepo, userRepo, logger)

	fileCache := service.NewFileCache(cfg.CacheSize, cfg.CacheTTL)
	filesSvc := service.NewFileService(
		fileRepo, fileTxStore, blobStore, fileCache,
		cfg.MaxUploadSize, cfg.PresignDefaultTTL,
		logger,
	)

	// 8. Readiness checkers (PostgreSQL + хранилище)
	pgChecker := database.NewReadinessChecker(pool)
	healthHandler := handlers.NewHealthHandler(pgChecker, blobStore)

	// 9. API handler
	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		orgSvc,
		filesSvc,
		cfg.MaxUploadSize,
		logger,
	)

	// 10. JWT middleware
	jwtAuth, err := middleware.NewJWTAuth(
		cfg.JWTJWKSURL,
		cfg.IDPCACertPath,
		cfg.JWTIssuer,
		userRepo,
		cfg.SuperuserGroups,
		cfg.JWKSClientTimeout,
		cfg.JWKSRefreshInterval,
		cfg.JWTLeeway,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer jwtAuth.Close()
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.JWTJWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
	)

	// 11. topologymetrics — мониторинг зависимостей (PostgreSQL + MinIO + IdP)
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"orgfiles",
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseURL(),
		cfg.MinioHealthURL(),
		cfg.JWTJWKSURL,
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 12. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler, jwtAuth)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 13. Graceful shutdown фоновых задач
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("Orgfiles остановлен")
}
