package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// DefaultEnvFile is the settings file that is read if it exists.
const DefaultEnvFile = ".env"

// DefaultSpriteConfig is the sprite location configuration file.
const DefaultSpriteConfig = "sprite_locations.json"

const envPrefix = "SPRITEPAL_"

// Environment variable names without the SPRITEPAL_ prefix.
const (
	EnvCacheDir          = "CACHE_DIR"
	EnvCacheEnabled      = "CACHE_ENABLED"
	EnvExpirationDays    = "CACHE_EXPIRATION_DAYS"
	EnvPreviewMemoryMB   = "PREVIEW_MEMORY_MB"
	EnvPreviewWorkers    = "PREVIEW_WORKERS"
	EnvPreviewDiskHours  = "PREVIEW_DISK_HOURS"
	EnvSpriteConfig      = "SPRITE_CONFIG"
	EnvBackupDir         = "BACKUP_DIR"
	EnvMaxBackups        = "MAX_BACKUPS"
	EnvNavigationEntries = "NAVIGATION_CACHE_ENTRIES"
	EnvLogLevel          = "LOG_LEVEL"
)

// Settings are the persistent application settings.
type Settings struct {
	CacheDir          string // empty uses the default ROM cache directory
	CacheEnabled      bool
	ExpirationDays    int    `validate:"gte=1,lte=365"`
	PreviewMemoryMB   int    `validate:"gte=1,lte=1024"`
	PreviewWorkers    int    `validate:"gte=1,lte=32"`
	PreviewDiskHours  int    `validate:"gte=1,lte=8760"`
	SpriteConfig      string
	BackupDir         string // empty stores backups next to the ROM
	MaxBackups        int    `validate:"gte=1,lte=1000"`
	NavigationEntries int    `validate:"gte=1"`
	LogLevel          string `validate:"omitempty,oneof=debug info error"`
}

// DefaultSettings returns the settings used for unset variables.
func DefaultSettings() Settings {
	return Settings{
		CacheEnabled:      true,
		SpriteConfig:      DefaultSpriteConfig,
		ExpirationDays:    30,
		PreviewMemoryMB:   10,
		PreviewWorkers:    4,
		PreviewDiskHours:  24,
		MaxBackups:        10,
		NavigationEntries: 5000,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the value ranges of the settings.
func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}

// LoadSettings reads the settings from the SPRITEPAL_ environment
// variables. Variables that are not set in the environment are read from
// the env file if it exists. An empty envFile uses DefaultEnvFile.
func LoadSettings(envFile string) (Settings, error) {
	if envFile == "" {
		envFile = DefaultEnvFile
	}

	fileValues, err := godotenv.Read(envFile)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Settings{}, fmt.Errorf("reading env file '%s': %w", envFile, err)
		}
		fileValues = map[string]string{}
	}

	lookup := func(name string) (string, bool) {
		if value, ok := os.LookupEnv(envPrefix + name); ok {
			return value, true
		}
		value, ok := fileValues[envPrefix+name]
		return value, ok
	}
	return parseSettings(lookup)
}

func parseSettings(lookup func(string) (string, bool)) (Settings, error) {
	s := DefaultSettings()

	stringValue := func(name string, target *string) {
		if value, ok := lookup(name); ok {
			*target = value
		}
	}
	var errs []error
	intValue := func(name string, target *int) {
		value, ok := lookup(name)
		if !ok || value == "" {
			return
		}
		i, err := strconv.Atoi(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("parsing %s%s: %w", envPrefix, name, err))
			return
		}
		*target = i
	}

	stringValue(EnvCacheDir, &s.CacheDir)
	stringValue(EnvSpriteConfig, &s.SpriteConfig)
	stringValue(EnvBackupDir, &s.BackupDir)
	stringValue(EnvLogLevel, &s.LogLevel)
	intValue(EnvExpirationDays, &s.ExpirationDays)
	intValue(EnvPreviewMemoryMB, &s.PreviewMemoryMB)
	intValue(EnvPreviewWorkers, &s.PreviewWorkers)
	intValue(EnvPreviewDiskHours, &s.PreviewDiskHours)
	intValue(EnvMaxBackups, &s.MaxBackups)
	intValue(EnvNavigationEntries, &s.NavigationEntries)

	if value, ok := lookup(EnvCacheEnabled); ok && value != "" {
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("parsing %s%s: %w", envPrefix, EnvCacheEnabled, err))
		} else {
			s.CacheEnabled = enabled
		}
	}

	if err := errors.Join(errs...); err != nil {
		return Settings{}, err
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}
