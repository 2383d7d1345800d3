package config

import (
	"os"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigtoml"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// Config describes all configuration options
type Config struct {
	TasksFile   string `toml:"tasks_file" env:"TASKS_FILE" default:"tasks.star" usage:"Name of the task script to search for"`
	DefaultTask string `toml:"default_task" env:"DEFAULT_TASK" default:"default" usage:"Task to run if none was passed"`
	Parallel    bool   `toml:"parallel" env:"PARALLEL" default:"true" usage:"Run the prerequisites of a task concurrently"`
	CacheFile   string `toml:"cache_file" env:"CACHE_FILE" default:".taskrun.cache" usage:"Where to cache the parsed task script (relative to the script)"`
	Log         struct {
		Level string `toml:"level" env:"LEVEL" default:"info"`
		JSON  bool   `toml:"json" env:"JSON" default:"false" usage:"Output JSONND instead of pretty console messages"`
	} `toml:"log" env:"LOG"`
}

var logLevels = map[string]zerolog.Level{
	"trace":   zerolog.TraceLevel,
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
	"fatal":   zerolog.FatalLevel,
}

// Loader initializes an empty config object and returns a new Loader for this object.
// Values are read from taskrun.toml and TASKRUN_* environment variables; flags are left
// to the CLI.
func Loader(files ...string) (*Config, *aconfig.Loader) {
	if len(files) == 0 {
		files = []string{"taskrun.toml"}
	}

	existing := make([]string, 0, len(files))
	for _, file := range files {
		if _, err := os.Stat(file); err == nil {
			existing = append(existing, file)
		}
	}

	cfg := Config{}
	// TASKRUN_DEBUG belongs to the console writer
	return &cfg, aconfig.LoaderFor(&cfg, aconfig.Config{
		SkipFlags:        true,
		EnvPrefix:        "TASKRUN",
		AllowUnknownEnvs: true,
		Files:            existing,
		FileDecoders: map[string]aconfig.FileDecoder{
			".toml": aconfigtoml.New(),
		},
	})
}

// Load reads the configuration and validates it
func Load(files ...string) (*Config, error) {
	cfg, loader := Loader(files...)
	if err := loader.Load(); err != nil {
		return nil, eris.Wrap(err, "failed to load config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate verifies that all config fields have valid values
func (cfg *Config) Validate() error {
	if cfg.TasksFile == "" {
		return eris.New("tasksfile can't be empty")
	}

	if cfg.DefaultTask == "" {
		return eris.New("defaulttask can't be empty")
	}

	if _, ok := logLevels[cfg.Log.Level]; !ok {
		return eris.Errorf(`Invalid value for log.level: %s`, cfg.Log.Level)
	}

	return nil
}

// LogLevel converts the .Log.Level field to a zerolog.Level
func (cfg *Config) LogLevel() zerolog.Level {
	return logLevels[cfg.Log.Level]
}
