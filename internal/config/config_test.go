package config

import (
	"testing"
	"time"
)

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.StoreDriver != "sqlite" {
		t.Errorf("Expected STORE_DRIVER default 'sqlite', got '%s'", cfg.StoreDriver)
	}
	if cfg.Redis.Enabled {
		t.Error("Expected Redis disabled without REDIS_ADDR")
	}
	if cfg.MQTT.Enabled {
		t.Error("Expected MQTT disabled without MQTT_BROKER")
	}
	if cfg.Board.Name != "Nintendo RVL-WBC-01" {
		t.Errorf("Expected default board name, got '%s'", cfg.Board.Name)
	}
	if cfg.Board.DiscoveryDuration != 6*time.Second {
		t.Errorf("Expected discovery duration 6s, got %v", cfg.Board.DiscoveryDuration)
	}
	if cfg.Processor.MaxPauseForMorningChecksDays != 5 {
		t.Errorf("Expected max pause 5, got %d", cfg.Processor.MaxPauseForMorningChecksDays)
	}
	if cfg.Processor.MorningHours != nil {
		t.Errorf("Expected no morning hours restriction, got %v", cfg.Processor.MorningHours)
	}
	if cfg.Aggregation.WeightCorrectionKg != 2 {
		t.Errorf("Expected weight correction 2, got %v", cfg.Aggregation.WeightCorrectionKg)
	}
	if cfg.Display.Hold != 2*time.Second {
		t.Errorf("Expected display hold 2s, got %v", cfg.Display.Hold)
	}
	if !cfg.Reset.Enabled || cfg.Reset.Pin != 4 || cfg.Reset.Pulse != 3*time.Second {
		t.Errorf("Unexpected reset defaults: %+v", cfg.Reset)
	}
	if cfg.Fitbit.Enabled {
		t.Error("Expected Fitbit disabled without tokens")
	}
	if len(cfg.Users) != 0 {
		t.Errorf("Expected empty roster, got %v", cfg.Users)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Expected LOG_LEVEL default 'info', got '%s'", cfg.Log.Level)
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DB_HOST", "db.local")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("MQTT_BROKER", "tcp://mqtt:1883")
	t.Setenv("BOARD_ADDRESS", "00:1E:35:AA:BB:CC")
	t.Setenv("MORNING_HOURS", "5-10")
	t.Setenv("MAX_MORNING_WEIGHT_DIFF", "1.5")
	t.Setenv("SCALE_USERS", "Alex:77, Olya:57,Platon:16")
	t.Setenv("FITBIT_TOKEN_ALEX", "alex-token")
	t.Setenv("DISPLAY_HOLD", "3s")
	t.Setenv("RESET_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.StoreDriver != "postgres" || cfg.Database.Host != "db.local" {
		t.Errorf("Unexpected store config: %s %s", cfg.StoreDriver, cfg.Database.Host)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Addr != "redis:6379" {
		t.Errorf("Unexpected redis config: %+v", cfg.Redis)
	}
	if !cfg.MQTT.Enabled {
		t.Error("Expected MQTT enabled")
	}
	if cfg.Board.Address != "00:1E:35:AA:BB:CC" {
		t.Errorf("Unexpected board address %s", cfg.Board.Address)
	}
	if cfg.Processor.MorningHours == nil || cfg.Processor.MorningHours.From != 5 || cfg.Processor.MorningHours.To != 10 {
		t.Errorf("Unexpected morning hours %v", cfg.Processor.MorningHours)
	}
	if cfg.Processor.MaxMorningWeightDiff != 1.5 {
		t.Errorf("Expected max morning diff 1.5, got %v", cfg.Processor.MaxMorningWeightDiff)
	}
	if len(cfg.Users) != 3 || cfg.Users[1].Name != "Olya" || cfg.Users[1].WeightKg != 57 {
		t.Fatalf("Unexpected users %+v", cfg.Users)
	}
	if cfg.Users[0].FitbitToken != "alex-token" || cfg.Users[1].FitbitToken != "" {
		t.Errorf("Unexpected tokens %+v", cfg.Users)
	}
	if !cfg.Fitbit.Enabled {
		t.Error("Expected Fitbit enabled when a token is configured")
	}
	if cfg.Display.Hold != 3*time.Second {
		t.Errorf("Expected display hold 3s, got %v", cfg.Display.Hold)
	}
	if cfg.Reset.Enabled {
		t.Error("Expected reset disabled")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"MORNING_HOURS", "11-5"},
		{"MORNING_HOURS", "morning"},
		{"SCALE_USERS", "Alex"},
		{"SCALE_USERS", "Alex:heavy"},
		{"SCALE_USERS", "Alex:77,Alex:78"},
		{"DISPLAY_HOLD", "2"},
		{"MAX_PAUSE_FOR_MORNING_CHECKS_DAYS", "five"},
		{"MAX_WEIGHT_DIFF_TO_DEFINE_USER", "-1"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("Expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}
