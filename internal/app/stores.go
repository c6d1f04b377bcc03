package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"

	"github.com/hitoshi/rentals/internal/config"
	"github.com/hitoshi/rentals/internal/database"
	"github.com/hitoshi/rentals/internal/handler"
	"github.com/hitoshi/rentals/internal/repository"
	"github.com/hitoshi/rentals/internal/revalidate"
)

// stores は選択されたバックエンドのリポジトリ群と、その後始末をまとめたもの。
type stores struct {
	users       repository.UserRepository
	identities  repository.IdentityRepository
	properties  repository.PropertyRepository
	revocations repository.RevocationRepository
	health      handler.HealthChecker
	redis       *redis.Client

	closers []func() error
}

// Close は開いた接続を逆順に閉じる。
func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			slog.Warn("failed to close connection", slog.String("error", err.Error()))
		}
	}
}

// openStores はSTORE_DRIVERとREVOCATION_DRIVERに従って接続を開き、リポジトリを構築する。
// 途中で失敗した場合は開いた接続を閉じてからエラーを返す。
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	s := &stores{}

	var err error
	switch cfg.StoreDriver {
	case config.StoreMongo:
		err = s.openMongo(ctx, cfg)
	default:
		err = s.openPostgres(ctx, cfg)
	}
	if err != nil {
		s.Close()
		return nil, err
	}

	if needsRedis(cfg) {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		s.closers = append(s.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		s.redis = client
		slog.Info("redis connection established")
	}

	if cfg.RevocationDriver == config.RevocationRedis {
		s.revocations = repository.NewRedisRevocationRepo(s.redis)
	}

	return s, nil
}

func (s *stores) openPostgres(ctx context.Context, cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL, database.Pool{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	s.closers = append(s.closers, db.Close)

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established", slog.String("driver", config.StorePostgres))

	s.users = repository.NewPostgresUserRepo(db)
	s.identities = repository.NewPostgresIdentityRepo(db)
	s.properties = repository.NewPostgresPropertyRepo(db)
	s.revocations = repository.NewPostgresRevocationRepo(db)
	s.health = db
	return nil
}

func (s *stores) openMongo(ctx context.Context, cfg *config.Config) error {
	client, err := database.OpenMongo(ctx, cfg.MongoURI)
	if err != nil {
		return err
	}
	s.closers = append(s.closers, func() error {
		return client.Disconnect(context.Background())
	})
	slog.Info("database connection established", slog.String("driver", config.StoreMongo))

	db := client.Database(cfg.MongoDatabase)
	s.users = repository.NewMongoUserRepo(db)
	s.identities = repository.NewMongoIdentityRepo(db)
	s.properties = repository.NewMongoPropertyRepo(db)
	s.revocations = repository.NewMongoRevocationRepo(db)
	s.health = handler.HealthCheckFunc(func(ctx context.Context) error {
		return client.Ping(ctx, nil)
	})
	return nil
}

// needsRedis はRedis接続が必要な設定かを返す。
func needsRedis(cfg *config.Config) bool {
	return cfg.RevocationDriver == config.RevocationRedis || cfg.RevalidateDriver == revalidate.DriverRedis
}
