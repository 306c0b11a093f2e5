package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации навигационного сервиса.
type Config struct {
	Nav       NavConfig       `yaml:"nav"`
	World     WorldConfig     `yaml:"world"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Cache     CacheConfig     `yaml:"cache"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	LogLevel  string          `yaml:"log_level"`
}

// NavConfig параметры навигационного графа и планировщика
type NavConfig struct {
	ChunkSizeX      int `yaml:"chunk_size_x"`
	ChunkHeight     int `yaml:"chunk_height"`
	ChunkSizeZ      int `yaml:"chunk_size_z"`
	Clearance       int `yaml:"clearance"`     // свободных клеток над блоком, чтобы стоять
	StepHeadroom    int `yaml:"step_headroom"` // свободных клеток для шага на ±1
	LookupDepth     int `yaml:"lookup_depth"`  // на сколько клеток вниз искать блок при lookup
	QueueCapacity   int `yaml:"queue_capacity"`
	ChangedCooldown int `yaml:"graph_changed_cooldown_ms"`
}

// WorldConfig параметры эталонного воксельного мира
type WorldConfig struct {
	Seed   int64 `yaml:"seed"`
	Radius int   `yaml:"radius_chunks"`
}

type EventBusConfig struct {
	URL       string `yaml:"url"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
	Buffer    int    `yaml:"buffer"`
}

type ServerConfig struct {
	RESTPort int `yaml:"rest_port"`
}

type StorageConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig кеш результатов поиска пути: Redis если задан адрес, иначе локальный
type CacheConfig struct {
	Enabled    bool   `yaml:"enabled"`
	RedisURL   string `yaml:"redis_url"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	TTLSeconds int    `yaml:"ttl_seconds"`
	MaxEntries int64  `yaml:"max_entries"`
}

// TTL возвращает время жизни записи кеша
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	Endpoint    string  `yaml:"endpoint"` // host:port OTLP/HTTP
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	return &Config{
		Nav: NavConfig{
			ChunkSizeX:      16,
			ChunkHeight:     256,
			ChunkSizeZ:      16,
			Clearance:       2,
			StepHeadroom:    3,
			LookupDepth:     3,
			QueueCapacity:   1024,
			ChangedCooldown: 400,
		},
		World: WorldConfig{
			Seed:   12345,
			Radius: 4,
		},
		EventBus: EventBusConfig{
			Stream:    "NAV",
			Retention: 1,
			Buffer:    256,
		},
		Storage: StorageConfig{
			Path: "data",
		},
		Cache: CacheConfig{
			Enabled:    true,
			TTLSeconds: 30,
			MaxEntries: 10000,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "voxel-nav",
			SampleRatio: 1,
		},
		LogLevel: "info",
	}
}

// ChangedCooldownDuration возвращает окно дебаунса события изменения графа
func (n NavConfig) ChangedCooldownDuration() time.Duration {
	return time.Duration(n.ChangedCooldown) * time.Millisecond
}

// Validate проверяет согласованность параметров
func (c *Config) Validate() error {
	n := c.Nav
	if n.ChunkSizeX <= 0 || n.ChunkSizeZ <= 0 || n.ChunkHeight <= 0 {
		return fmt.Errorf("некорректный размер чанка %dx%dx%d", n.ChunkSizeX, n.ChunkHeight, n.ChunkSizeZ)
	}
	// При clearance 1 в окне ±1 соседней колонки может оказаться два блока
	if n.Clearance < 2 || n.Clearance >= n.ChunkHeight {
		return fmt.Errorf("clearance %d вне диапазона [2, %d)", n.Clearance, n.ChunkHeight)
	}
	if n.StepHeadroom < n.Clearance {
		return fmt.Errorf("step_headroom %d меньше clearance %d", n.StepHeadroom, n.Clearance)
	}
	if n.QueueCapacity <= 0 {
		return fmt.Errorf("queue_capacity должен быть > 0, получено %d", n.QueueCapacity)
	}
	if n.LookupDepth < 0 {
		return fmt.Errorf("lookup_depth не может быть отрицательным")
	}
	if r := c.Telemetry.SampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("telemetry.sample_ratio %.2f вне диапазона [0, 1]", r)
	}
	return nil
}

// GetRESTPort возвращает REST порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "NAV_REST_PORT", 8090)
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	return defaultPort
}

// Load читает YAML файл конфигурации поверх значений по умолчанию.
// Если path == "", пытается прочитать из ENV NAV_CONFIG или возвращает Default().
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("NAV_CONFIG")
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение конфигурации %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("разбор конфигурации %s: %w", path, err)
	}

	if url := os.Getenv("NAV_NATS_URL"); url != "" && cfg.EventBus.URL == "" {
		cfg.EventBus.URL = url
	}
	if url := os.Getenv("NAV_REDIS_URL"); url != "" && cfg.Cache.RedisURL == "" {
		cfg.Cache.RedisURL = url
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
