// Пакет storage — фасад объектного хранилища (MinIO / S3-совместимое).
// Содержимое файлов хранится в одном bucket, метаданные — в PostgreSQL.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/bigkaa/orgfiles/internal/config"
)

// ErrUnavailable — объектное хранилище недоступно или вернуло ошибку.
var ErrUnavailable = errors.New("объектное хранилище недоступно")

// Object — открытый для чтения объект хранилища.
type Object struct {
	// Reader — поток содержимого, закрывает вызывающий.
	Reader io.ReadCloser
	// Size — размер объекта в байтах.
	Size int64
	// ContentType — MIME-тип объекта.
	ContentType string
}

// Store — клиент bucket'а с отложенной проверкой его существования.
// Bucket создаётся при первом обращении, а не при старте процесса:
// хранилище может подниматься позже сервиса.
type Store struct {
	client *minio.Client
	bucket string
	region string
	logger *slog.Logger

	mu          sync.Mutex
	bucketReady bool
}

// New создаёт Store поверх готового minio-клиента.
func New(client *minio.Client, bucket, region string, logger *slog.Logger) *Store {
	return &Store{
		client: client,
		bucket: bucket,
		region: region,
		logger: logger,
	}
}

// NewFromConfig создаёт minio-клиент из конфигурации и оборачивает его в Store.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (*Store, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка создания клиента MinIO: %w", err)
	}
	return New(client, cfg.MinioBucket, cfg.MinioRegion, logger), nil
}

// ensureBucket проверяет существование bucket'а и создаёт его при
// отсутствии. Успешная проверка запоминается; ошибка — нет, чтобы
// следующий вызов повторил попытку.
func (s *Store) ensureBucket(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bucketReady {
		return nil
	}

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("%w: ошибка проверки bucket: %v", ErrUnavailable, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("%w: ошибка создания bucket: %v", ErrUnavailable, err)
		}
		s.logger.Info("bucket создан", "bucket", s.bucket)
	}

	s.bucketReady = true
	return nil
}

// Put загружает объект под указанным ключом.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if err := s.ensureBucket(ctx); err != nil {
		return err
	}

	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("%w: ошибка загрузки объекта %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

// Get открывает объект для чтения. Заголовки объекта запрашиваются
// сразу, чтобы отличить отсутствие объекта от недоступности хранилища.
func (s *Store) Get(ctx context.Context, key string) (*Object, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: ошибка получения объекта %s: %v", ErrUnavailable, key, err)
	}

	stat, err := obj.Stat()
	if err != nil {
		obj.Close() //nolint:errcheck
		return nil, fmt.Errorf("%w: ошибка получения объекта %s: %v", ErrUnavailable, key, err)
	}

	return &Object{
		Reader:      obj,
		Size:        stat.Size,
		ContentType: stat.ContentType,
	}, nil
}

// Delete удаляет объект. Удаление несуществующего объекта не ошибка.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.ensureBucket(ctx); err != nil {
		return err
	}

	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("%w: ошибка удаления объекта %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

// PresignedURL возвращает временную ссылку на скачивание объекта.
// filename подставляется в Content-Disposition ответа хранилища.
func (s *Store) PresignedURL(ctx context.Context, key, filename string, ttl time.Duration) (string, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return "", err
	}

	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", filename))

	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, ttl, params)
	if err != nil {
		return "", fmt.Errorf("%w: ошибка создания presigned URL для %s: %v", ErrUnavailable, key, err)
	}
	return u.String(), nil
}

// CheckReady проверяет доступность объектного хранилища.
// Возвращает статус ("ok", "fail") и сообщение.
func (s *Store) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := s.client.BucketExists(ctx, s.bucket); err != nil {
		return "fail", fmt.Sprintf("хранилище недоступно: %v", err)
	}
	return "ok", "хранилище доступно"
}
