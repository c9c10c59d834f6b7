package service

import (
	"context"
	"database/sql"
	"fmt"

	"wisefido-scale/internal/board"
	"wisefido-scale/internal/common/database"
	commonmqtt "wisefido-scale/internal/common/mqtt"
	rediscommon "wisefido-scale/internal/common/redis"
	"wisefido-scale/internal/config"
	"wisefido-scale/internal/display"
	"wisefido-scale/internal/forwarder"
	"wisefido-scale/internal/processor"
	"wisefido-scale/internal/repository"
	"wisefido-scale/internal/resetline"

	"go.uber.org/zap"
)

// NewScaleService 按配置创建服务：历史存储、Redis、MQTT、Fitbit、蓝牙和复位线
func NewScaleService(cfg *config.Config, logger *zap.Logger) (*ScaleService, error) {
	c := Components{Roster: processor.NewRoster(cfg.Users)}
	fail := func(err error) (*ScaleService, error) {
		for _, closeFn := range c.Closers {
			_ = closeFn()
		}
		return nil, err
	}

	// 历史存储
	db, dialect, err := OpenStore(cfg)
	if err != nil {
		return fail(err)
	}
	c.Closers = append(c.Closers, func() error { return database.Close(db) })
	if err := repository.Migrate(context.Background(), db); err != nil {
		return fail(err)
	}
	c.History = repository.NewSQLHistoryStore(db, dialect, logger.Named("history"))

	var forwarders forwarder.Multi
	displays := display.Multi{display.NewLogDisplay(logger.Named("display"))}

	if cfg.Fitbit.Enabled {
		forwarders = append(forwarders, forwarder.NewFitbitForwarder(cfg.Fitbit.BaseURL, c.Roster, logger.Named("fitbit")))
	}

	// Redis：名单缓存 + 晨重事件流
	if cfg.Redis.Enabled {
		redisClient := rediscommon.NewRedisClient(&cfg.Redis)
		c.Closers = append(c.Closers, func() error { return rediscommon.Close(redisClient) })
		if err := rediscommon.Ping(context.Background(), redisClient); err != nil {
			return fail(fmt.Errorf("failed to connect to redis: %w", err))
		}
		c.Cache = repository.NewRosterCache(redisClient, repository.DefaultRosterKey, logger.Named("roster_cache"))
		forwarders = append(forwarders, forwarder.NewStreamForwarder(redisClient, cfg.Forward.Stream, cfg.Forward.StreamMaxLen, logger.Named("stream")))
	}

	// MQTT：家庭自动化 + 远程显示
	if cfg.MQTT.Enabled {
		mqttClient, err := commonmqtt.NewClient(&cfg.MQTT, logger.Named("mqtt"))
		if err != nil {
			return fail(err)
		}
		c.Closers = append(c.Closers, func() error {
			mqttClient.Disconnect()
			return nil
		})
		forwarders = append(forwarders, forwarder.NewMQTTForwarder(mqttClient, cfg.Forward.TopicPrefix, logger.Named("mqtt_forwarder")))
		displays = append(displays, display.NewMQTTDisplay(mqttClient, cfg.Display.Topic))
	}

	if len(forwarders) > 0 {
		c.Forwarder = forwarders
	}
	c.Display = displays

	c.Dialer = board.L2CAPDialer{}
	c.Finder = board.NewDiscoverer(cfg.Board.Adapter, cfg.Board.Name, cfg.Board.DiscoveryDuration, logger.Named("discovery"))
	if cfg.Reset.Enabled {
		c.Reset = resetline.New(cfg.Reset.SysfsRoot, cfg.Reset.Pin, cfg.Reset.Pulse, logger.Named("reset"))
	}

	logger.Info("Scale service configured",
		zap.String("store", dialect.String()),
		zap.Bool("redis", cfg.Redis.Enabled),
		zap.Bool("mqtt", cfg.MQTT.Enabled),
		zap.Bool("fitbit", cfg.Fitbit.Enabled),
		zap.Int("forwarders", len(forwarders)),
	)
	return NewScaleServiceWith(cfg, c, logger), nil
}

// OpenStore 按 STORE_DRIVER 打开历史数据库
func OpenStore(cfg *config.Config) (*sql.DB, repository.Dialect, error) {
	dialect, err := repository.ParseDialect(cfg.StoreDriver)
	if err != nil {
		return nil, 0, err
	}
	var db *sql.DB
	switch dialect {
	case repository.DialectPostgres:
		db, err = database.NewPostgresDB(&cfg.Database)
	default:
		db, err = database.NewSQLiteDB(&cfg.SQLite)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open history store: %w", err)
	}
	return db, dialect, nil
}
