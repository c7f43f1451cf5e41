// Package config gathers every setting a build needs into one struct,
// read once at startup from flags, an optional .env file and the process
// environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Mode is the build mode.
type Mode string

const (
	ModeDevelopment Mode = "development"
	ModeProduction  Mode = "production"
)

// Environment variable names.
const (
	EnvNodeEnv         = "NODE_ENV"
	EnvCacheDir        = "UNI_APP_X_CACHE_DIR"
	EnvModulesCacheDir = "UNI_MODULES_CACHE_DIR"
	EnvTranspiler      = "UVUEBUILD_TRANSPILER"
	EnvToolchain       = "UVUEBUILD_TOOLCHAIN"
	EnvKotlinHome      = "KOTLIN_HOME"
	EnvAndroidHome     = "ANDROID_HOME"
	EnvAndroidAPI      = "UVUEBUILD_ANDROID_API"
	EnvLogFile         = "UVUEBUILD_LOG_FILE"
	EnvDebug           = "UVUEBUILD_DEBUG"
)

const (
	defaultPackageName = "uni.UNIAPPX"
	defaultAndroidAPI  = 21
	defaultCacheSubdir = "cache"
)

// Config is passed to the pipeline at construction time.
type Config struct {
	Mode Mode

	// InputDir is the project root.
	InputDir string

	// OutputDir receives deployed dex artifacts.
	OutputDir string

	// CacheRoot holds src/, class/ and dex/.
	CacheRoot string

	// ModulesCacheDir holds shared module jars.
	ModulesCacheDir string

	PackageName string
	EntryFile   string

	TranspilerBin string
	ToolchainBin  string
	KotlinHome    string
	AndroidSDK    string
	AndroidAPI    int

	LogFile string
	Debug   bool

	// Globals are forwarded to the transpiler: NODE_ENV and every UNI_*
	// variable.
	Globals map[string]string
}

// Overrides carries flag values; empty fields fall back to the environment.
type Overrides struct {
	InputDir    string
	OutputDir   string
	CacheRoot   string
	PackageName string
	Mode        string
	Debug       bool
}

// Load builds a Config. <inputDir>/.env is loaded first without overriding
// variables already present in the process environment.
func Load(o Overrides) (*Config, error) {
	input := strings.TrimSpace(o.InputDir)
	if input == "" {
		input = "."
	}
	input, err := filepath.Abs(input)
	if err != nil {
		return nil, fmt.Errorf("resolving input dir: %w", err)
	}
	info, err := os.Stat(input)
	if err != nil {
		return nil, fmt.Errorf("input dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("input dir %s is not a directory", input)
	}

	envFile := filepath.Join(input, ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	mode, err := parseMode(firstNonEmpty(o.Mode, os.Getenv(EnvNodeEnv)))
	if err != nil {
		return nil, err
	}

	output := firstNonEmpty(o.OutputDir, filepath.Join(input, "unpackage", "dist", "dev", "app-android"))
	cacheRoot := firstNonEmpty(o.CacheRoot, os.Getenv(EnvCacheDir), filepath.Join(input, "unpackage", defaultCacheSubdir, ".app-android"))
	modulesCache := firstNonEmpty(os.Getenv(EnvModulesCacheDir), filepath.Join(cacheRoot, "uni_modules"))

	api := defaultAndroidAPI
	if raw := strings.TrimSpace(os.Getenv(EnvAndroidAPI)); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer, got %q", EnvAndroidAPI, raw)
		}
		api = v
	}

	cfg := &Config{
		Mode:            mode,
		InputDir:        input,
		OutputDir:       absUnder(input, output),
		CacheRoot:       absUnder(input, cacheRoot),
		ModulesCacheDir: absUnder(input, modulesCache),
		PackageName:     firstNonEmpty(o.PackageName, defaultPackageName),
		EntryFile:       "main.uts",
		TranspilerBin:   os.Getenv(EnvTranspiler),
		ToolchainBin:    os.Getenv(EnvToolchain),
		KotlinHome:      os.Getenv(EnvKotlinHome),
		AndroidSDK:      os.Getenv(EnvAndroidHome),
		AndroidAPI:      api,
		LogFile:         os.Getenv(EnvLogFile),
		Debug:           o.Debug || parseBool(os.Getenv(EnvDebug)),
		Globals:         forwardedGlobals(os.Environ()),
	}
	return cfg, nil
}

// Production reports whether the full production build path applies.
func (c *Config) Production() bool { return c != nil && c.Mode == ModeProduction }

func parseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "development", "dev":
		return ModeDevelopment, nil
	case "production", "prod":
		return ModeProduction, nil
	default:
		return "", fmt.Errorf("invalid build mode %q (expected development|production)", raw)
	}
}

func forwardedGlobals(environ []string) map[string]string {
	out := map[string]string{}
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if k == EnvNodeEnv || strings.HasPrefix(k, "UNI_") {
			out[k] = v
		}
	}
	return out
}

// GlobalKeys returns the forwarded variable names in sorted order.
func (c *Config) GlobalKeys() []string {
	keys := make([]string, 0, len(c.Globals))
	for k := range c.Globals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func absUnder(base, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}

func parseBool(raw string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	return err == nil && v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
