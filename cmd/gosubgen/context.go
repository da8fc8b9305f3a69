package main

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/jo-hoe/gosubgen/internal/config"
	"github.com/jo-hoe/gosubgen/internal/jobs"
	"github.com/jo-hoe/gosubgen/internal/logging"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		c.config, c.configErr = config.Load(path)
	})
	return c.config, c.configErr
}

func (c *commandContext) logger() (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Options{Level: cfg.Server.LogLevel, Format: cfg.Server.LogFormat})
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}

func (c *commandContext) withStore(fn func(*config.Config, jobs.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := jobs.NewSQLiteStore(cfg.Server.DatabasePath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return fn(cfg, store)
}
