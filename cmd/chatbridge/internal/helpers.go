package internal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/joho/godotenv"

	"github.com/tinyland-inc/chatbridge/pkg/config"
	"github.com/tinyland-inc/chatbridge/pkg/logger"
)

const Logo = "💬"

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

func GetHomeDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".chatbridge")
}

func GetConfigPath() string {
	return filepath.Join(GetHomeDir(), "config.json")
}

func GetDhallConfigPath() string {
	return filepath.Join(GetHomeDir(), "config.dhall")
}

// LoadConfig loads .env from the working directory without overriding the
// environment, then the Dhall config if one exists, then the JSON config.
func LoadConfig() (*config.Config, error) {
	_ = godotenv.Load(".env")

	// Try Dhall config first (opt-in: only if .dhall file exists)
	dhallPath := GetDhallConfigPath()
	if _, err := os.Stat(dhallPath); err == nil {
		cfg, err := config.LoadDhallConfig(dhallPath)
		switch {
		case err == nil:
			return cfg, nil
		case errors.Is(err, config.ErrDhallNotAvailable):
			logger.WarnCF("config", "dhall-to-json not installed, falling back to JSON", map[string]any{
				"dhall_path": dhallPath,
			})
		default:
			return nil, fmt.Errorf("error loading dhall config: %w", err)
		}
	}

	return config.LoadConfig(GetConfigPath())
}

// FormatVersion returns the version string with optional git commit
func FormatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

// FormatBuildInfo returns build time and go version info
func FormatBuildInfo() (string, string) {
	build := buildTime
	goVer := goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	return build, goVer
}

// GetVersion returns the version string
func GetVersion() string {
	return version
}
