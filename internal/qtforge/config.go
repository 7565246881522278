package qtforge

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/mitchellh/go-homedir"
)

const defaultConfigFile = "~/.config/qtforge/qtforge.conf"

// Config holds the raw KEY=VALUE pairs from the config file and the
// environment.
type Config struct {
	Values map[string]string
}

// configPath returns QTFORGE_CONFIG when set, else the per-user default.
func configPath() (string, error) {
	if p := os.Getenv("QTFORGE_CONFIG"); p != "" {
		return homedir.Expand(p)
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "qtforge", "qtforge.conf"), nil
	}
	return homedir.Expand(defaultConfigFile)
}

// loadConfig reads path (a missing file is fine) and merges QTFORGE_*, R2_*
// and CONAN_USER_HOME from the environment on top.
func loadConfig(path string) (*Config, error) {
	cfg := &Config{Values: make(map[string]string)}

	file, err := os.Open(path)
	switch {
	case err == nil:
		defer file.Close()
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}
			key := strings.TrimSpace(parts[0])
			val := strings.TrimSpace(parts[1])
			val = strings.Trim(val, `"'`)
			cfg.Values[key] = val
		}
		if err := scanner.Err(); err != nil {
			return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return cfg, fmt.Errorf("failed to open config %s: %w", path, err)
	}

	mergeEnvOverrides(cfg)
	return cfg, nil
}

func mergeEnvOverrides(cfg *Config) {
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, "QTFORGE_") || strings.HasPrefix(env, "R2_") {
			parts := strings.SplitN(env, "=", 2)
			if len(parts) == 2 {
				cfg.Values[parts[0]] = parts[1]
			}
		}
	}
	// conan's own variable only fills in when nothing explicit is configured
	if home := os.Getenv("CONAN_USER_HOME"); home != "" {
		if _, exists := cfg.Values["QTFORGE_CONAN_HOME"]; !exists {
			cfg.Values["QTFORGE_CONAN_HOME"] = home
		}
	}
}

// Settings is the resolved configuration of one run. It is built once in
// Main and passed to every step.
type Settings struct {
	Package     string
	Version     string
	BaseVersion string
	Remote      string
	Profile     string
	Channel     string
	BuildDir    string
	CustomDir   string
	ConanHome   string // directory that contains .conan
	TargetOS    string // selects the conan create option set

	Debug        bool
	DryRun       bool
	AssumeYes    bool
	SkipDownload bool

	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2Bucket          string
	R2Endpoint        string // overrides https://<account>.r2.cloudflarestorage.com
}

// newSettings applies config values over the built-in defaults.
func newSettings(cfg *Config) *Settings {
	get := func(key, def string) string {
		if v := cfg.Values[key]; v != "" {
			return v
		}
		return def
	}
	return &Settings{
		Package:     get("QTFORGE_PACKAGE", "qt"),
		Version:     get("QTFORGE_VERSION", "5.15.2-p1"),
		BaseVersion: get("QTFORGE_BASE_VERSION", "5.15.2"),
		Remote:      get("QTFORGE_REMOTE", "conancenter"),
		Profile:     get("QTFORGE_PROFILE", "macos-clang12-debug"),
		Channel:     get("QTFORGE_CHANNEL", "vkcalls/stable"),
		BuildDir:    get("QTFORGE_BUILD_DIR", "build-qt"),
		CustomDir:   get("QTFORGE_CUSTOM_DIR", "."),
		ConanHome:   get("QTFORGE_CONAN_HOME", "~"),
		TargetOS:    get("QTFORGE_TARGET_OS", runtime.GOOS),
		Debug:       cfg.Values["QTFORGE_DEBUG"] == "1",

		R2AccountID:       cfg.Values["R2_ACCOUNT_ID"],
		R2AccessKeyID:     cfg.Values["R2_ACCESS_KEY_ID"],
		R2SecretAccessKey: cfg.Values["R2_SECRET_ACCESS_KEY"],
		R2Bucket:          cfg.Values["R2_BUCKET_NAME"],
		R2Endpoint:        cfg.Values["R2_ENDPOINT"],
	}
}

// stringFlag registers one setting under a short and a long name.
func stringFlag(flags *flag.FlagSet, p *string, short, long, usage string) {
	flags.StringVar(p, short, *p, usage)
	flags.StringVar(p, long, *p, usage)
}

// bindRecipeFlags registers the flags shared by commands that work on the
// build and custom directories.
func (s *Settings) bindRecipeFlags(flags *flag.FlagSet) {
	stringFlag(flags, &s.Version, "v", "version", "target version to build")
	stringFlag(flags, &s.BaseVersion, "w", "base-version", "version to apply custom patches to")
	stringFlag(flags, &s.BuildDir, "b", "build-dir", "build directory")
	stringFlag(flags, &s.CustomDir, "c", "custom-dir", "directory containing custom patches")
	flags.BoolVar(&s.Debug, "debug", s.Debug, "print debug output")
}

// bindCreateFlags registers the full option set of the create command.
func (s *Settings) bindCreateFlags(flags *flag.FlagSet) {
	s.bindRecipeFlags(flags)
	stringFlag(flags, &s.Remote, "r", "remote", "conan remote")
	stringFlag(flags, &s.Profile, "p", "profile", "target profile")
	flags.StringVar(&s.Channel, "channel", s.Channel, "user/channel the recipe is copied to and built in")
	flags.StringVar(&s.Package, "package", s.Package, "conan package name")
	flags.StringVar(&s.ConanHome, "conan-home", s.ConanHome, "directory containing .conan")
	flags.StringVar(&s.TargetOS, "os", s.TargetOS, "platform whose conan option set is used (windows, darwin, linux)")
	flags.BoolVar(&s.AssumeYes, "yes", s.AssumeYes, "do not ask before replacing the build directory")
	flags.BoolVar(&s.DryRun, "dry-run", s.DryRun, "print external commands instead of running them")
	flags.BoolVar(&s.SkipDownload, "skip-download", s.SkipDownload, "reuse the recipe already in the conan cache")
}

// finalize expands ~ and makes directory settings absolute.
func (s *Settings) finalize() error {
	for _, p := range []*string{&s.BuildDir, &s.CustomDir, &s.ConanHome} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand %s: %w", *p, err)
		}
		abs, err := filepath.Abs(expanded)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", expanded, err)
		}
		*p = abs
	}
	if s.Version == "" || s.BaseVersion == "" {
		return errors.New("version and base version must not be empty")
	}
	return nil
}

// debugf prints debug messages when Debug is set
func (s *Settings) debugf(format string, args ...any) {
	if s.Debug {
		fmt.Printf(format, args...)
	}
}
