package sys

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	APIID          int32         `envconfig:"API_ID"`
	APIHash        string        `envconfig:"API_HASH"`
	BotToken       string        `envconfig:"BOT_TOKEN"`
	DatabasePath   string        `envconfig:"DATABASE_PATH"`
	HealthPort     int           `envconfig:"HEALTH_PORT" default:"8080"`
	FFmpegPath     string        `envconfig:"FFMPEG_PATH" default:"ffmpeg"`
	RTMPURL        string        `envconfig:"RTMP_URL"`
	RTMPKey        string        `envconfig:"RTMP_KEY"`
	ResolveTimeout time.Duration `envconfig:"RESOLVE_TIMEOUT" default:"45s"`
	InstallYTDLP   bool          `envconfig:"YTDLP_INSTALL"`
	Silent         bool          `envconfig:"SILENT"`
	LogFile        bool          `envconfig:"LOG_FILE"`
}

var GlobalConfig *Config

// LoadConfig reads .env (if present) and the process environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}

	if cfg.DatabasePath == "" {
		folder := "."
		if info, err := os.Stat("data"); err == nil && info.IsDir() {
			folder = "./data"
		}
		cfg.DatabasePath = filepath.Join(folder, GetProjectName()+".db")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Silent {
		SetSilentMode(true)
	}

	GlobalConfig = cfg
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.APIID == 0 {
		errs = append(errs, errors.New(MsgConfigMissingAPIID))
	} else if c.APIID < 0 {
		errs = append(errs, fmt.Errorf("invalid API_ID: %d", c.APIID))
	}
	if c.APIHash == "" {
		errs = append(errs, errors.New(MsgConfigMissingAPIHash))
	}
	if c.BotToken == "" {
		errs = append(errs, errors.New(MsgConfigMissingBotToken))
	}
	if c.HealthPort <= 0 || c.HealthPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HEALTH_PORT: %d", c.HealthPort))
	}
	if c.RTMPURL != "" && !IsRTMPURL(c.RTMPURL) {
		errs = append(errs, fmt.Errorf("invalid RTMP_URL: %q", c.RTMPURL))
	}
	return errors.Join(errs...)
}

// DSN returns the sqlite data source name with the pragmas the bot relies on.
func (c *Config) DSN() string {
	return fmt.Sprintf("%s?_journal_mode=WAL&_timeout=5000", c.DatabasePath)
}

// HealthAddr is the listen address of the health endpoint.
func (c *Config) HealthAddr() string {
	return fmt.Sprintf(":%d", c.HealthPort)
}

func IsRTMPURL(u string) bool {
	l := strings.ToLower(u)
	return strings.HasPrefix(l, "rtmp://") || strings.HasPrefix(l, "rtmps://")
}

func GetProjectName() string {
	exePath, err := os.Executable()
	projectName := "chorus"
	if err == nil {
		projectName = strings.TrimSuffix(filepath.Base(exePath), ".exe")

		if projectName == "main" || strings.HasPrefix(projectName, "go_build_") || strings.HasSuffix(projectName, ".test") {
			projectName = "chorus"
			if modData, err := os.ReadFile("go.mod"); err == nil {
				lines := strings.Split(string(modData), "\n")
				if len(lines) > 0 && strings.HasPrefix(lines[0], "module ") {
					parts := strings.Split(lines[0], "/")
					projectName = strings.TrimSpace(parts[len(parts)-1])
				}
			}
		}
	}
	return projectName
}
