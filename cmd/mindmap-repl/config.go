package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/phroun/mindmap"
	"github.com/phroun/mindmap/storage"
)

// Config is the REPL configuration file.
type Config struct {
	// Store is "dir" or "sqlite"; empty disables persistence.
	Store string `yaml:"store"`

	// Path is the store directory or database file.
	Path string `yaml:"path"`

	// Format is the snapshot codec, "json" or "yaml".
	Format string `yaml:"format"`

	UndoLimit int    `yaml:"undo_limit"`
	LogLevel  string `yaml:"log_level"`
}

// loadConfig reads path. A missing file yields the zero Config.
func loadConfig(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// openStore builds the configured snapshot store. The returned close
// function is never nil.
func (c Config) openStore(ctx context.Context) (mindmap.SnapshotStore, *storage.DirStore, func() error, error) {
	noop := func() error { return nil }
	codec, err := storage.CodecFor(c.Format)
	if err != nil {
		return nil, nil, noop, err
	}
	switch c.Store {
	case "":
		return nil, nil, noop, nil
	case "dir":
		path := c.Path
		if path == "" {
			path = "mindmaps"
		}
		ds, err := storage.NewDirStore(nil, path, codec)
		if err != nil {
			return nil, nil, noop, err
		}
		return ds, ds, noop, nil
	case "sqlite":
		path := c.Path
		if path == "" {
			path = "mindmaps.db"
		}
		ss, err := storage.OpenSQLite(ctx, path, codec)
		if err != nil {
			return nil, nil, noop, err
		}
		return ss, nil, ss.Close, nil
	}
	return nil, nil, noop, fmt.Errorf("unknown store kind %q", c.Store)
}
