package weaver

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/weave/errors"
)

// ConfigFileName is the configuration file looked up next to the source
// module.
const ConfigFileName = "weave.toml"

// ConfigEnv names an explicit configuration file.
const ConfigEnv = "WEAVE_CONFIG"

// FileConfig is the TOML configuration file.
type FileConfig struct {
	Marker         string    `toml:"marker"`
	MarkerScope    string    `toml:"marker_scope"`
	Include        []string  `toml:"include"`
	Exclude        []string  `toml:"exclude"`
	Report         string    `toml:"report"`
	RegenerateMVID *bool     `toml:"regenerate_mvid"`
	Naming         NamingDef `toml:"naming"`
	Log            LogConfig `toml:"log"`

	// Path is the file the config was loaded from (set at load time).
	Path string `toml:"-"`
}

// NamingDef is the [naming] table.
type NamingDef struct {
	OriginalSuffix string `toml:"original_suffix"`
	StubSuffix     string `toml:"stub_suffix"`
	Trampoline     string `toml:"trampoline"`
}

// LogConfig is the [log] table.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Log formats.
const (
	LogFormatAuto    = "auto"
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

// LoadConfigFile parses a configuration file.
func LoadConfigFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.PhaseConfig, errors.KindNotFound).
			Path(path).
			Detail("cannot read config").
			Cause(err).
			Build()
	}

	var fc FileConfig
	md, err := toml.Decode(string(data), &fc)
	if err != nil {
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidData).
			Path(path).
			Detail("parse error").
			Cause(err).
			Build()
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidData).
			Path(path).
			Detail("unknown keys: %s", strings.Join(keys, ", ")).
			Build()
	}
	fc.Path = path

	// Defaults
	if fc.Log.Level == "" {
		fc.Log.Level = "info"
	}
	if fc.Log.Format == "" {
		fc.Log.Format = LogFormatAuto
	}
	if err := fc.check(); err != nil {
		return nil, err
	}
	return &fc, nil
}

func (fc *FileConfig) check() error {
	if _, err := zapcore.ParseLevel(fc.Log.Level); err != nil {
		return errors.New(errors.PhaseConfig, errors.KindInvalidData).
			Path(fc.Path, "log", "level").
			Value(fc.Log.Level).
			Detail("unknown log level").
			Build()
	}
	switch fc.Log.Format {
	case LogFormatAuto, LogFormatConsole, LogFormatJSON:
	default:
		return errors.New(errors.PhaseConfig, errors.KindInvalidData).
			Path(fc.Path, "log", "format").
			Value(fc.Log.Format).
			Detail("format must be auto, console or json").
			Build()
	}
	return nil
}

// FindConfig returns the configuration file to use for a module in dir:
// $WEAVE_CONFIG when set, otherwise weave.toml in dir if it exists. The
// second result is false when there is none.
func FindConfig(dir string) (string, bool) {
	if p := os.Getenv(ConfigEnv); p != "" {
		return p, true
	}
	path := filepath.Join(dir, ConfigFileName)
	if _, err := os.Stat(path); err == nil {
		return path, true
	}
	return "", false
}

// LoadConfig finds and loads the configuration for a module in dir. It
// returns a zero FileConfig with defaults when no file exists.
func LoadConfig(dir string) (*FileConfig, error) {
	path, ok := FindConfig(dir)
	if !ok {
		return &FileConfig{Log: LogConfig{Level: "info", Format: LogFormatAuto}}, nil
	}
	return LoadConfigFile(path)
}

// Level returns the configured log level.
func (fc *FileConfig) Level() zapcore.Level {
	lvl, err := zapcore.ParseLevel(fc.Log.Level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// Config converts the file configuration to a weaving Config. Relative
// report paths are resolved against the config file's directory.
func (fc *FileConfig) Config() Config {
	cfg := Config{
		IncludePatterns: fc.Include,
		ExcludePatterns: fc.Exclude,
		Marker:          fc.Marker,
		MarkerScope:     fc.MarkerScope,
		Naming: Naming{
			OriginalSuffix: fc.Naming.OriginalSuffix,
			StubSuffix:     fc.Naming.StubSuffix,
			Trampoline:     fc.Naming.Trampoline,
		},
		KeepMVID:   fc.RegenerateMVID != nil && !*fc.RegenerateMVID,
		ReportPath: fc.Report,
	}
	if cfg.ReportPath != "" && !filepath.IsAbs(cfg.ReportPath) && fc.Path != "" {
		cfg.ReportPath = filepath.Join(filepath.Dir(fc.Path), cfg.ReportPath)
	}
	return cfg
}
