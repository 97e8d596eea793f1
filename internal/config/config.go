package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	NATS       NATSConfig       `yaml:"nats"`
	MinIO      MinIOConfig      `yaml:"minio"`
	Vision     VisionConfig     `yaml:"vision"`
	Notify     NotifyConfig     `yaml:"notify"`
	Background BackgroundConfig `yaml:"background"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	Port        int    `yaml:"port"`
	MetricsPort int    `yaml:"metrics_port"`
	APIKey      string `yaml:"api_key"`
	// MaxUploadBytes bounds multipart and JSON detection payloads.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// PassConfig holds the parameters of one localizer pass.
type PassConfig struct {
	ScaleFactor   float64 `yaml:"scale_factor"`
	MinNeighbors  int     `yaml:"min_neighbors"`
	MinSizeRatio  float64 `yaml:"min_size_ratio"`
	MinConfidence float64 `yaml:"min_confidence"`
}

type VisionConfig struct {
	// Detector selects the localizer backend: "haar" or "retinaface".
	Detector       string        `yaml:"detector"`
	CascadePath    string        `yaml:"cascade_path"`
	ModelsDir      string        `yaml:"models_dir"`
	Primary        PassConfig    `yaml:"primary"`
	Aggressive     PassConfig    `yaml:"aggressive"`
	MatchThreshold float64       `yaml:"match_threshold"`
	MinImageSize   int           `yaml:"min_image_size"`
	WorkerCount    int           `yaml:"worker_count"`
	DetectTimeout  time.Duration `yaml:"detect_timeout"`
}

type ResendConfig struct {
	APIKey string `yaml:"api_key"`
	From   string `yaml:"from"`
}

type TwilioConfig struct {
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	From       string `yaml:"from"`
}

type NotifyConfig struct {
	Resend          ResendConfig  `yaml:"resend"`
	Twilio          TwilioConfig  `yaml:"twilio"`
	DeliveryTimeout time.Duration `yaml:"delivery_timeout"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
	SweepGrace      time.Duration `yaml:"sweep_grace"`
	SweepBackoff    time.Duration `yaml:"sweep_backoff"`
	SweepBatch      int           `yaml:"sweep_batch"`
	MaxAttempts     int           `yaml:"max_attempts"`
}

type BackgroundConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from a YAML file and applies environment variable overrides.
// A .env file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist) && path == DefaultPath:
		// env-only deployments run without a config file
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	return cfg, nil
}

// DefaultPath is the config location used when -config is not given.
const DefaultPath = "configs/config.yaml"

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 8082
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 10 << 20
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = "facewatch"
	}
	if cfg.Vision.Detector == "" {
		cfg.Vision.Detector = "haar"
	}
	if cfg.Vision.CascadePath == "" {
		cfg.Vision.CascadePath = "models/haarcascade_frontalface_default.xml"
	}
	if cfg.Vision.ModelsDir == "" {
		cfg.Vision.ModelsDir = "models"
	}
	setPassDefaults(&cfg.Vision.Primary, PassConfig{ScaleFactor: 1.1, MinNeighbors: 5, MinSizeRatio: 0.1, MinConfidence: 0.5})
	setPassDefaults(&cfg.Vision.Aggressive, PassConfig{ScaleFactor: 1.05, MinNeighbors: 3, MinSizeRatio: 0.05, MinConfidence: 0.3})
	if cfg.Vision.MatchThreshold == 0 {
		cfg.Vision.MatchThreshold = 0.6
	}
	if cfg.Vision.MinImageSize == 0 {
		cfg.Vision.MinImageSize = 50
	}
	if cfg.Vision.WorkerCount == 0 {
		cfg.Vision.WorkerCount = 6
	}
	if cfg.Vision.DetectTimeout == 0 {
		cfg.Vision.DetectTimeout = 10 * time.Second
	}
	if cfg.Notify.DeliveryTimeout == 0 {
		cfg.Notify.DeliveryTimeout = 15 * time.Second
	}
	if cfg.Notify.SweepInterval == 0 {
		cfg.Notify.SweepInterval = time.Minute
	}
	if cfg.Notify.SweepGrace == 0 {
		cfg.Notify.SweepGrace = 2 * time.Minute
	}
	if cfg.Notify.SweepBackoff == 0 {
		cfg.Notify.SweepBackoff = 5 * time.Minute
	}
	if cfg.Notify.SweepBatch == 0 {
		cfg.Notify.SweepBatch = 50
	}
	if cfg.Notify.MaxAttempts == 0 {
		cfg.Notify.MaxAttempts = 5
	}
	if cfg.Background.Workers == 0 {
		cfg.Background.Workers = 4
	}
	if cfg.Background.QueueSize == 0 {
		cfg.Background.QueueSize = 256
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func setPassDefaults(p *PassConfig, def PassConfig) {
	if p.ScaleFactor == 0 {
		p.ScaleFactor = def.ScaleFactor
	}
	if p.MinNeighbors == 0 {
		p.MinNeighbors = def.MinNeighbors
	}
	if p.MinSizeRatio == 0 {
		p.MinSizeRatio = def.MinSizeRatio
	}
	if p.MinConfidence == 0 {
		p.MinConfidence = def.MinConfidence
	}
}

func applyEnvOverrides(cfg *Config) {
	envInt("FW_SERVER_PORT", &cfg.Server.Port)
	envInt("FW_METRICS_PORT", &cfg.Server.MetricsPort)
	envString("FW_API_KEY", &cfg.Server.APIKey)

	envString("FW_DB_HOST", &cfg.Database.Host)
	envInt("FW_DB_PORT", &cfg.Database.Port)
	envString("FW_DB_NAME", &cfg.Database.Name)
	envString("FW_DB_USER", &cfg.Database.User)
	envString("FW_DB_PASSWORD", &cfg.Database.Password)

	envString("FW_NATS_URL", &cfg.NATS.URL)

	envString("FW_MINIO_ENDPOINT", &cfg.MinIO.Endpoint)
	envString("FW_MINIO_ACCESS_KEY", &cfg.MinIO.AccessKey)
	envString("FW_MINIO_SECRET_KEY", &cfg.MinIO.SecretKey)
	envString("FW_MINIO_BUCKET", &cfg.MinIO.Bucket)

	envString("FW_DETECTOR", &cfg.Vision.Detector)
	envString("FW_CASCADE_PATH", &cfg.Vision.CascadePath)
	envString("FW_MODELS_DIR", &cfg.Vision.ModelsDir)
	envInt("FW_VISION_WORKER_COUNT", &cfg.Vision.WorkerCount)
	if v := os.Getenv("FW_MATCH_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Vision.MatchThreshold = f
		}
	}
	envDuration("FW_DETECT_TIMEOUT", &cfg.Vision.DetectTimeout)

	envString("RESEND_API_KEY", &cfg.Notify.Resend.APIKey)
	envString("RESEND_DEFAULT_EMAIL", &cfg.Notify.Resend.From)
	envString("TWILIO_ACCOUNT_SID", &cfg.Notify.Twilio.AccountSID)
	envString("TWILIO_AUTH_TOKEN", &cfg.Notify.Twilio.AuthToken)
	envString("TWILIO_FROM_NUMBER", &cfg.Notify.Twilio.From)
	envDuration("FW_DELIVERY_TIMEOUT", &cfg.Notify.DeliveryTimeout)

	envString("FW_LOG_LEVEL", &cfg.Logging.Level)
	envString("FW_LOG_FORMAT", &cfg.Logging.Format)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
