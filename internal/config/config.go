package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"wisefido-scale/internal/common/config"
	"wisefido-scale/internal/models"
	"wisefido-scale/internal/processor"
)

// Config 体重秤服务配置
type Config struct {
	// 历史存储：sqlite（本机，默认）或 postgres
	StoreDriver string

	Database config.DatabaseConfig
	SQLite   config.SQLiteConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig

	Board struct {
		Address           string // 为空时扫描
		Name              string
		Adapter           string
		DiscoveryDuration time.Duration
		PollInterval      time.Duration
	}

	Processor processor.Configuration
	Users     []models.UserProfile

	Aggregation struct {
		StandOnThresholdKg float64
		RenderInterval     time.Duration
		WeightCorrectionKg float64 // 加到聚合结果上的修正值
	}

	Fitbit struct {
		Enabled bool
		BaseURL string
	}

	Forward struct {
		Stream       string // Redis 启用时写入
		StreamMaxLen int64
		TopicPrefix  string // MQTT 启用时发布
	}

	Display struct {
		Hold  time.Duration // 最终读数保持时间
		Topic string
	}

	Reset struct {
		Enabled   bool
		Pin       int
		Pulse     time.Duration
		SysfsRoot string
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	cfg.StoreDriver = getEnv("STORE_DRIVER", "sqlite")
	cfg.SQLite.Path = getEnv("SQLITE_PATH", "./scale.db")

	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Database = "owlrd"
	cfg.Database.SSLMode = "disable"
	cfg.Database.LoadFromEnv("DB")

	// 未设置 REDIS_ADDR / MQTT_BROKER 时不启用
	cfg.Redis.LoadFromEnv("REDIS")
	cfg.MQTT.ClientID = "wisefido-scale"
	cfg.MQTT.QoS = 1
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.Board.Address = getEnv("BOARD_ADDRESS", "")
	cfg.Board.Name = getEnv("BOARD_NAME", "Nintendo RVL-WBC-01")
	cfg.Board.Adapter = getEnv("BLUETOOTH_ADAPTER", "hci0")
	if cfg.Board.DiscoveryDuration, err = getDuration("DISCOVERY_DURATION", 6*time.Second); err != nil {
		return nil, err
	}
	if cfg.Board.PollInterval, err = getDuration("BOARD_POLL_INTERVAL", 100*time.Millisecond); err != nil {
		return nil, err
	}

	cfg.Processor = processor.DefaultConfiguration()
	if cfg.Processor.MaxPauseForMorningChecksDays, err = getInt("MAX_PAUSE_FOR_MORNING_CHECKS_DAYS", cfg.Processor.MaxPauseForMorningChecksDays); err != nil {
		return nil, err
	}
	if cfg.Processor.MaxMorningWeightDiff, err = getFloat("MAX_MORNING_WEIGHT_DIFF", cfg.Processor.MaxMorningWeightDiff); err != nil {
		return nil, err
	}
	if cfg.Processor.MaxWeightDiffToDefineUser, err = getFloat("MAX_WEIGHT_DIFF_TO_DEFINE_USER", cfg.Processor.MaxWeightDiffToDefineUser); err != nil {
		return nil, err
	}
	if cfg.Processor.MorningHours, err = processor.ParseHourRange(getEnv("MORNING_HOURS", "")); err != nil {
		return nil, err
	}
	if err := cfg.Processor.Validate(); err != nil {
		return nil, err
	}

	if cfg.Users, err = parseUsers(getEnv("SCALE_USERS", "")); err != nil {
		return nil, err
	}
	hasToken := false
	for i := range cfg.Users {
		cfg.Users[i].FitbitToken = os.Getenv("FITBIT_TOKEN_" + strings.ToUpper(cfg.Users[i].Name))
		hasToken = hasToken || cfg.Users[i].FitbitToken != ""
	}
	cfg.Fitbit.Enabled = getEnv("FITBIT_ENABLED", strconv.FormatBool(hasToken)) == "true"
	cfg.Fitbit.BaseURL = getEnv("FITBIT_BASE_URL", "https://api.fitbit.com")

	if cfg.Aggregation.StandOnThresholdKg, err = getFloat("STAND_ON_THRESHOLD_KG", 10); err != nil {
		return nil, err
	}
	if cfg.Aggregation.RenderInterval, err = getDuration("RENDER_INTERVAL", 500*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.Aggregation.WeightCorrectionKg, err = getFloat("WEIGHT_CORRECTION_KG", 2); err != nil {
		return nil, err
	}

	cfg.Forward.Stream = getEnv("WEIGHT_STREAM", "scale:weight:stream")
	maxLen, err := getInt("WEIGHT_STREAM_MAXLEN", 1000)
	if err != nil {
		return nil, err
	}
	cfg.Forward.StreamMaxLen = int64(maxLen)
	cfg.Forward.TopicPrefix = getEnv("MQTT_TOPIC_PREFIX", "wisefido/scale")

	if cfg.Display.Hold, err = getDuration("DISPLAY_HOLD", 2*time.Second); err != nil {
		return nil, err
	}
	cfg.Display.Topic = getEnv("DISPLAY_TOPIC", cfg.Forward.TopicPrefix+"/display")

	cfg.Reset.Enabled = getEnv("RESET_ENABLED", "true") == "true"
	if cfg.Reset.Pin, err = getInt("RESET_GPIO", 4); err != nil {
		return nil, err
	}
	if cfg.Reset.Pulse, err = getDuration("RESET_PULSE", 3*time.Second); err != nil {
		return nil, err
	}
	cfg.Reset.SysfsRoot = getEnv("RESET_SYSFS_ROOT", "/sys/class/gpio")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

// parseUsers 解析 "Alex:77,Olya:57"，保持顺序
func parseUsers(s string) ([]models.UserProfile, error) {
	var users []models.UserProfile
	seen := make(map[string]bool)
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, weight, ok := strings.Cut(entry, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid SCALE_USERS entry %q, want name:kg", entry)
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(weight), 64)
		if err != nil || w <= 0 {
			return nil, fmt.Errorf("invalid weight in SCALE_USERS entry %q", entry)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate user %q in SCALE_USERS", name)
		}
		seen[name] = true
		users = append(users, models.UserProfile{Name: name, WeightKg: w})
	}
	return users, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
