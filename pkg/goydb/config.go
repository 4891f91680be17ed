package goydb

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/goydb/mrindex/internal/controller"
	"github.com/goydb/mrindex/pkg/logger"
)

// Config is read from GOYDB_* environment variables, flags override
// the environment.
type Config struct {
	DatabaseDir   string `env:"GOYDB_DB_DIR" envDefault:"./dbs"`
	ListenAddress string `env:"GOYDB_LISTEN" envDefault:":7070"`
	LogLevel      string `env:"GOYDB_LOG_LEVEL" envDefault:"info"`

	BatchSize       int           `env:"GOYDB_BATCH_SIZE" envDefault:"1000"`
	ChunkSize       int           `env:"GOYDB_REDUCE_CHUNK_SIZE" envDefault:"1024"`
	ReduceTimeout   time.Duration `env:"GOYDB_REDUCE_TIMEOUT" envDefault:"5s"`
	PollInterval    time.Duration `env:"GOYDB_POLL_INTERVAL" envDefault:"5s"`
	ScriptCacheSize int           `env:"GOYDB_SCRIPT_CACHE_SIZE" envDefault:"256"`
	SchemaCacheSize int           `env:"GOYDB_SCHEMA_CACHE_SIZE" envDefault:"1024"`
	ErrorListSize   int           `env:"GOYDB_ERROR_LIST_SIZE" envDefault:"100"`
}

func NewConfig() (*Config, error) {
	var cfg Config
	err := env.Parse(&cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}
	return &cfg, nil
}

// ParseFlags overrides the config with the command line flags.
func (c *Config) ParseFlags() {
	c.parseFlags(flag.CommandLine, os.Args[1:])
}

func (c *Config) parseFlags(fs *flag.FlagSet, args []string) {
	fs.StringVar(&c.DatabaseDir, "dbs", c.DatabaseDir, "directory of the database files")
	fs.StringVar(&c.ListenAddress, "addr", c.ListenAddress, "address of the http server")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn or error")
	fs.IntVar(&c.BatchSize, "batch-size", c.BatchSize, "documents per indexing batch")
	fs.IntVar(&c.ChunkSize, "chunk-size", c.ChunkSize, "values per reduce call before re-reducing")
	fs.DurationVar(&c.ReduceTimeout, "reduce-timeout", c.ReduceTimeout, "time budget of one reduce call")
	fs.DurationVar(&c.PollInterval, "poll-interval", c.PollInterval, "interval of the staleness check without changes")
	fs.IntVar(&c.ScriptCacheSize, "script-cache", c.ScriptCacheSize, "number of compiled functions kept")
	fs.IntVar(&c.SchemaCacheSize, "schema-cache", c.SchemaCacheSize, "number of output schemas kept")
	fs.IntVar(&c.ErrorListSize, "error-list", c.ErrorListSize, "distinct errors kept per index")
	fs.Parse(args) // nolint: errcheck
}

func (c *Config) EngineConfig() controller.EngineConfig {
	return controller.EngineConfig{
		Options: controller.Options{
			BatchSize:     c.BatchSize,
			ChunkSize:     c.ChunkSize,
			ReduceTimeout: c.ReduceTimeout,
			PollInterval:  c.PollInterval,
			ErrorListSize: c.ErrorListSize,
		},
		ScriptCacheSize: c.ScriptCacheSize,
		SchemaCacheSize: c.SchemaCacheSize,
	}
}

func (c *Config) Logger() logger.Logger {
	return logger.NewDefault(logger.ParseLevel(c.LogLevel))
}
