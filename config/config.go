package config

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"github.com/thanos-io/objstore/providers/s3"
	"gopkg.in/yaml.v2"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// AuthSubjectConfig is one entry of AUTH_SUBJECTS
type AuthSubjectConfig struct {
	Token  string   `yaml:"token"`
	Name   string   `yaml:"name"`
	UserID string   `yaml:"userId"`
	Roles  []string `yaml:"roles"`
}

type InferenceConfig struct {
	URL     string
	Timeout time.Duration
}

type ForecastConfig struct {
	CacheTTL           time.Duration
	DirectionThreshold float64
}

// ServerConfig is the root config for a glucoscope server
type ServerConfig struct {
	APISecretHash string
	DefaultRole   string
	AdminUserID   string
	AuthSubjects  []AuthSubjectConfig
	S3Config      s3.Config
	Postgres      PostgresConfig
	Inference     InferenceConfig
	Forecast      ForecastConfig
	HbA1cLimit    int
	Server        struct {
		Address string
	}
	LogLevel slog.Level
}

// RegisterEnv registers config from the environment
func (c *ServerConfig) RegisterEnv() error {
	c.Server.Address = os.Getenv("SERVER_ADDRESS")
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	// authn may be performed using a sha1 of API_SECRET
	if apiSecret := os.Getenv("API_SECRET"); apiSecret != "" {
		hasher := sha1.New()
		hasher.Write([]byte(apiSecret))
		c.APISecretHash = hex.EncodeToString(hasher.Sum(nil))
	}
	c.DefaultRole = os.Getenv("DEFAULT_ROLE")
	if c.DefaultRole == "" {
		c.DefaultRole = "denied"
	}
	c.AdminUserID = os.Getenv("ADMIN_USER_ID")
	if c.AdminUserID == "" {
		c.AdminUserID = "admin"
	}

	logLevel, ok := logLevels[strings.ToLower(os.Getenv("LOG_LEVEL"))]
	if !ok {
		logLevel = slog.LevelInfo
	}
	c.LogLevel = logLevel

	// nb "yaml is a superset of json", so we can load json from env while
	// using the standard Thanos yaml code
	var s3Config s3.Config
	err := yaml.Unmarshal([]byte(os.Getenv("S3_CONFIG")), &s3Config)
	if err != nil {
		return fmt.Errorf("cannot parse S3 config: %w", err)
	}
	c.S3Config = s3Config

	var subjects []AuthSubjectConfig
	err = yaml.Unmarshal([]byte(os.Getenv("AUTH_SUBJECTS")), &subjects)
	if err != nil {
		return fmt.Errorf("cannot parse AUTH_SUBJECTS: %w", err)
	}
	for i, s := range subjects {
		if s.Token == "" || s.UserID == "" {
			return fmt.Errorf("AUTH_SUBJECTS entry %d needs a token and a userId", i)
		}
	}
	c.AuthSubjects = subjects

	c.Postgres = PostgresConfig{
		Host:     os.Getenv("POSTGRES_HOST"),
		Port:     envOr("POSTGRES_PORT", "5432"),
		User:     os.Getenv("POSTGRES_USER"),
		Password: os.Getenv("POSTGRES_PASSWORD"),
		Database: os.Getenv("POSTGRES_DATABASE"),
		SSLMode:  envOr("POSTGRES_SSLMODE", "disable"),
	}

	c.Inference.URL = os.Getenv("INFERENCE_URL")
	if c.Inference.Timeout, err = envDuration("INFERENCE_TIMEOUT", 8*time.Second); err != nil {
		return err
	}
	if c.Forecast.CacheTTL, err = envDuration("FORECAST_CACHE_TTL", 30*time.Minute); err != nil {
		return err
	}
	if c.Forecast.DirectionThreshold, err = envFloat("FORECAST_DIRECTION_THRESHOLD", 8); err != nil {
		return err
	}
	if c.HbA1cLimit, err = envInt("HBA1C_FETCH_LIMIT", 1000); err != nil {
		return err
	}

	return nil
}

func envOr(key string, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("cannot parse %s %q as a positive duration", key, v)
	}
	return d, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("cannot parse %s %q as a positive number", key, v)
	}
	return f, nil
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil || i <= 0 {
		return 0, fmt.Errorf("cannot parse %s %q as a positive integer", key, v)
	}
	return i, nil
}
