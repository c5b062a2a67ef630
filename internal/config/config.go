package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/i474232898/windserver/internal/weather/providers"
)

// AppConfig is read once at startup and passed to constructors by value.
type AppConfig struct {
	Port string `toml:"port" validate:"required,numeric"`

	// Upstream selection.
	Resolution providers.Resolution `toml:"resolution" validate:"oneof=0.5 1"`
	Wind       bool                 `toml:"wind"`
	Temp       bool                 `toml:"temp"`
	BaseURL    string               `toml:"gfs_base_url" validate:"omitempty,url"`

	// External converter.
	Grib2JSON        string        `toml:"grib2json" validate:"required"`
	ConvertTimeout   time.Duration `toml:"-" validate:"gt=0"`
	ConvertMaxOutput int           `toml:"convert_max_output" validate:"gt=0"`

	// Root directory holding grib-data/ and json-data/.
	DataDir string `toml:"data_dir" validate:"required"`

	// Harvest schedule and search bounds.
	HarvestInterval   time.Duration `toml:"-" validate:"gte=1m"`
	LookbackDays      int           `toml:"lookback_days" validate:"gte=1"`
	MaxForecastOffset int           `toml:"max_forecast_offset" validate:"gte=0"`
	HTTPTimeout       time.Duration `toml:"-" validate:"gt=0"`
	FetchRetries      int           `toml:"fetch_retries" validate:"gte=0,lte=10"`

	CORSOrigins []string `toml:"cors_origins" validate:"min=1,dive,url"`

	LogLevel  string `toml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `toml:"log_format" validate:"oneof=json console"`
}

// fileConfig mirrors AppConfig for TOML, with durations as strings.
type fileConfig struct {
	AppConfig
	HarvestInterval string `toml:"harvest_interval"`
	HTTPTimeout     string `toml:"http_timeout"`
	ConvertTimeout  string `toml:"convert_timeout"`
}

var validate = validator.New()

// DefaultCORSOrigins are the local development origins allowed by default.
var DefaultCORSOrigins = []string{
	"http://localhost:8080",
	"http://localhost:3000",
	"http://localhost:4000",
}

// Default returns the configuration used when nothing is set.
func Default() AppConfig {
	return AppConfig{
		Port:              "7000",
		Resolution:        providers.ResolutionHalfDegree,
		Wind:              true,
		Temp:              false,
		Grib2JSON:         "./converter/bin/grib2json",
		ConvertTimeout:    2 * time.Minute,
		ConvertMaxOutput:  500 * 1024,
		DataDir:           ".",
		HarvestInterval:   15 * time.Minute,
		LookbackDays:      7,
		MaxForecastOffset: 15,
		HTTPTimeout:       30 * time.Second,
		FetchRetries:      2,
		CORSOrigins:       append([]string(nil), DefaultCORSOrigins...),
		LogLevel:          "info",
		LogFormat:         "console",
	}
}

// Load reads configuration from .env, an optional TOML file named by
// CONFIG_FILE, and the environment, in increasing order of precedence.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}

	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadFile(path string, cfg *AppConfig) error {
	fc := fileConfig{AppConfig: *cfg}
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"harvest_interval", fc.HarvestInterval, &fc.AppConfig.HarvestInterval},
		{"http_timeout", fc.HTTPTimeout, &fc.AppConfig.HTTPTimeout},
		{"convert_timeout", fc.ConvertTimeout, &fc.AppConfig.ConvertTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("invalid %s in %s: %w", d.name, path, err)
		}
		*d.dst = v
	}

	res, err := providers.ParseResolution(string(fc.AppConfig.Resolution))
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	fc.AppConfig.Resolution = res

	*cfg = fc.AppConfig
	return nil
}

func applyEnv(cfg *AppConfig) error {
	cfg.Port = getenvDefault("PORT", cfg.Port)
	cfg.Grib2JSON = getenvDefault("GRIB2JSON", cfg.Grib2JSON)
	cfg.DataDir = getenvDefault("DATA_DIR", cfg.DataDir)
	cfg.BaseURL = getenvDefault("GFS_BASE_URL", cfg.BaseURL)
	cfg.LogLevel = strings.ToLower(getenvDefault("LOG_LEVEL", cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(getenvDefault("LOG_FORMAT", cfg.LogFormat))

	if v := os.Getenv("RESOLUTION"); v != "" {
		res, err := providers.ParseResolution(v)
		if err != nil {
			return fmt.Errorf("invalid RESOLUTION: %w", err)
		}
		cfg.Resolution = res
	}

	var err error
	if cfg.Wind, err = getenvBool("WIND", cfg.Wind); err != nil {
		return err
	}
	if cfg.Temp, err = getenvBool("TEMP", cfg.Temp); err != nil {
		return err
	}

	if cfg.HarvestInterval, err = getenvDuration("HARVEST_INTERVAL", cfg.HarvestInterval); err != nil {
		return err
	}
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", cfg.HTTPTimeout); err != nil {
		return err
	}
	if cfg.ConvertTimeout, err = getenvDuration("CONVERT_TIMEOUT", cfg.ConvertTimeout); err != nil {
		return err
	}

	cfg.LookbackDays = getenvInt("LOOKBACK_DAYS", cfg.LookbackDays)
	cfg.MaxForecastOffset = getenvInt("MAX_FORECAST_OFFSET", cfg.MaxForecastOffset)
	cfg.FetchRetries = getenvInt("FETCH_RETRIES", cfg.FetchRetries)
	cfg.ConvertMaxOutput = getenvInt("CONVERT_MAX_OUTPUT", cfg.ConvertMaxOutput)

	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitList(v)
	}
	return nil
}

// Lookback is LookbackDays as a duration.
func (c AppConfig) Lookback() time.Duration {
	return time.Duration(c.LookbackDays) * 24 * time.Hour
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
		log.Printf("INFO: ignoring invalid %s=%q", key, v)
	}
	return def
}

func getenvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
