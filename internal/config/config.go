// Пакет config — загрузка и валидация конфигурации Orgfiles
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Orgfiles.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- PostgreSQL ---

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Максимальное число соединений в пуле
	DBMaxConns int32
	// Минимальное число соединений в пуле
	DBMinConns int32

	// --- MinIO (объектное хранилище) ---

	// Endpoint MinIO (host:port, без схемы)
	MinioEndpoint string
	// Access key MinIO
	MinioAccessKey string
	// Secret key MinIO
	MinioSecretKey string
	// Имя bucket для файлов
	MinioBucket string
	// Использовать TLS при подключении к MinIO
	MinioUseSSL bool
	// Регион bucket (для make-bucket)
	MinioRegion string

	// --- Identity Provider / JWT ---

	// URL IdP (например, https://keycloak.kryukov.lan)
	IDPURL string
	// Имя realm в IdP
	IDPRealm string
	// Issuer JWT (авто-вычисляется из IDPURL, если не задан)
	JWTIssuer string
	// URL JWKS endpoint (авто-вычисляется из IDPURL, если не задан)
	JWTJWKSURL string
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// Интервал обновления JWKS-ключей
	JWKSRefreshInterval time.Duration
	// Группы IdP, дающие флаг суперпользователя (через запятую)
	SuperuserGroups []string
	// Путь к CA-сертификату для TLS-соединений с IdP (опционально)
	IDPCACertPath string

	// --- Кэш метаданных файлов ---

	// Максимальное количество записей в LRU-кэше
	CacheSize int
	// TTL записи кэша
	CacheTTL time.Duration

	// --- Дополнительно ---

	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics
	DephealthGroup string
	// TTL presigned URL по умолчанию
	PresignDefaultTTL time.Duration
	// Максимальный размер загружаемого файла в байтах
	MaxUploadSize int64
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// OF_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("OF_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("OF_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("OF_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// OF_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("OF_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("OF_LOG_LEVEL: %w", err)
	}

	// OF_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("OF_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("OF_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- PostgreSQL ---

	// OF_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("OF_DB_HOST")
	if err != nil {
		return nil, err
	}

	// OF_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("OF_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("OF_DB_PORT: %w", err)
	}

	// OF_DB_NAME — обязательный
	cfg.DBName, err = getEnvRequired("OF_DB_NAME")
	if err != nil {
		return nil, err
	}

	// OF_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("OF_DB_USER")
	if err != nil {
		return nil, err
	}

	// OF_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("OF_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	// OF_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("OF_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("OF_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// OF_DB_MAX_CONNS — максимум соединений в пуле (по умолчанию 10)
	maxConns, err := getEnvInt("OF_DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("OF_DB_MAX_CONNS: %w", err)
	}
	if maxConns < 1 {
		return nil, fmt.Errorf("OF_DB_MAX_CONNS: значение должно быть положительным")
	}
	cfg.DBMaxConns = int32(maxConns)

	// OF_DB_MIN_CONNS — минимум соединений в пуле (по умолчанию 2)
	minConns, err := getEnvInt("OF_DB_MIN_CONNS", 2)
	if err != nil {
		return nil, fmt.Errorf("OF_DB_MIN_CONNS: %w", err)
	}
	if minConns < 0 || int32(minConns) > cfg.DBMaxConns {
		return nil, fmt.Errorf("OF_DB_MIN_CONNS: значение %d вне допустимого диапазона 0-%d", minConns, cfg.DBMaxConns)
	}
	cfg.DBMinConns = int32(minConns)

	// --- MinIO ---

	// OF_MINIO_ENDPOINT — обязательный (host:port без схемы)
	cfg.MinioEndpoint, err = getEnvRequired("OF_MINIO_ENDPOINT")
	if err != nil {
		return nil, err
	}
	if strings.Contains(cfg.MinioEndpoint, "://") {
		return nil, fmt.Errorf("OF_MINIO_ENDPOINT: ожидается host:port без схемы, получено %q", cfg.MinioEndpoint)
	}

	// OF_MINIO_ACCESS_KEY — обязательный
	cfg.MinioAccessKey, err = getEnvRequired("OF_MINIO_ACCESS_KEY")
	if err != nil {
		return nil, err
	}

	// OF_MINIO_SECRET_KEY — обязательный
	cfg.MinioSecretKey, err = getEnvRequired("OF_MINIO_SECRET_KEY")
	if err != nil {
		return nil, err
	}

	// OF_MINIO_BUCKET — имя bucket (по умолчанию orgfiles)
	cfg.MinioBucket = getEnvDefault("OF_MINIO_BUCKET", "orgfiles")

	// OF_MINIO_USE_SSL — TLS для MinIO (по умолчанию false)
	cfg.MinioUseSSL, err = getEnvBool("OF_MINIO_USE_SSL", false)
	if err != nil {
		return nil, fmt.Errorf("OF_MINIO_USE_SSL: %w", err)
	}

	// OF_MINIO_REGION — регион bucket (по умолчанию пустой)
	cfg.MinioRegion = getEnvDefault("OF_MINIO_REGION", "")

	// --- Identity Provider / JWT ---

	// OF_IDP_URL — обязательный
	cfg.IDPURL, err = getEnvRequired("OF_IDP_URL")
	if err != nil {
		return nil, err
	}
	// Убираем trailing slash
	cfg.IDPURL = strings.TrimRight(cfg.IDPURL, "/")

	// OF_IDP_REALM — realm (по умолчанию orgfiles)
	cfg.IDPRealm = getEnvDefault("OF_IDP_REALM", "orgfiles")

	// OF_JWT_ISSUER — авто-вычисляется из IDPURL, если не задан
	cfg.JWTIssuer = getEnvDefault("OF_JWT_ISSUER",
		fmt.Sprintf("%s/realms/%s", cfg.IDPURL, cfg.IDPRealm))

	// OF_JWT_JWKS_URL — авто-вычисляется из IDPURL, если не задан
	cfg.JWTJWKSURL = getEnvDefault("OF_JWT_JWKS_URL",
		fmt.Sprintf("%s/realms/%s/protocol/openid-connect/certs", cfg.IDPURL, cfg.IDPRealm))

	// OF_JWT_LEEWAY — допустимое отклонение времени (по умолчанию 30s)
	cfg.JWTLeeway, err = getEnvDuration("OF_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("OF_JWT_LEEWAY: %w", err)
	}

	// OF_JWKS_CLIENT_TIMEOUT — таймаут JWKS-клиента (по умолчанию 10s)
	cfg.JWKSClientTimeout, err = getEnvDuration("OF_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("OF_JWKS_CLIENT_TIMEOUT: %w", err)
	}

	// OF_JWKS_REFRESH_INTERVAL — интервал обновления JWKS (по умолчанию 1h)
	cfg.JWKSRefreshInterval, err = getEnvDuration("OF_JWKS_REFRESH_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("OF_JWKS_REFRESH_INTERVAL: %w", err)
	}

	// OF_SUPERUSER_GROUPS — группы суперпользователей (по умолчанию "orgfiles-admins")
	cfg.SuperuserGroups = parseCSV(getEnvDefault("OF_SUPERUSER_GROUPS", "orgfiles-admins"))

	// OF_IDP_CA_CERT_PATH — CA-сертификат для TLS-соединений с IdP (опционально)
	cfg.IDPCACertPath = getEnvDefault("OF_IDP_CA_CERT_PATH", "")

	// --- Кэш метаданных ---

	// OF_CACHE_SIZE — размер LRU-кэша (по умолчанию 1000)
	cfg.CacheSize, err = getEnvInt("OF_CACHE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("OF_CACHE_SIZE: %w", err)
	}
	if cfg.CacheSize < 1 || cfg.CacheSize > 1000000 {
		return nil, fmt.Errorf("OF_CACHE_SIZE: значение %d вне допустимого диапазона 1-1000000", cfg.CacheSize)
	}

	// OF_CACHE_TTL — TTL записи кэша (по умолчанию 5m)
	cfg.CacheTTL, err = getEnvDuration("OF_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("OF_CACHE_TTL: %w", err)
	}

	// --- Дополнительно ---

	// OF_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("OF_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("OF_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// OF_DEPHEALTH_GROUP — группа в метриках topologymetrics (по умолчанию orgfiles)
	cfg.DephealthGroup = getEnvDefault("OF_DEPHEALTH_GROUP", "orgfiles")

	// OF_PRESIGN_DEFAULT_TTL — TTL presigned URL (по умолчанию 1h)
	cfg.PresignDefaultTTL, err = getEnvDuration("OF_PRESIGN_DEFAULT_TTL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("OF_PRESIGN_DEFAULT_TTL: %w", err)
	}

	// OF_MAX_UPLOAD_SIZE — максимальный размер файла (по умолчанию 512 MiB)
	maxUpload, err := getEnvInt("OF_MAX_UPLOAD_SIZE", 512*1024*1024)
	if err != nil {
		return nil, fmt.Errorf("OF_MAX_UPLOAD_SIZE: %w", err)
	}
	if maxUpload < 1 {
		return nil, fmt.Errorf("OF_MAX_UPLOAD_SIZE: значение должно быть положительным")
	}
	cfg.MaxUploadSize = int64(maxUpload)

	// OF_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("OF_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("OF_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL подключения к PostgreSQL для мигратора.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.DBUser), url.QueryEscape(c.DBPassword),
		c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// MinioHealthURL возвращает URL liveness endpoint MinIO для dephealth.
func (c *Config) MinioHealthURL() string {
	scheme := "http"
	if c.MinioUseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/minio/health/live", scheme, c.MinioEndpoint)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
