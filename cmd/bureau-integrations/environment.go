// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/integrations/cmd/bureau-integrations/cli"
	"github.com/bureau-foundation/integrations/integrationmanager"
	"github.com/bureau-foundation/integrations/lib/async"
	"github.com/bureau-foundation/integrations/lib/config"
	"github.com/bureau-foundation/integrations/lib/secret"
	"github.com/bureau-foundation/integrations/lib/snapshot"
	"github.com/bureau-foundation/integrations/messaging"
	"github.com/bureau-foundation/integrations/widgets"
)

// app carries the flags shared by every command and the writer
// command output goes to.
type app struct {
	stdout     io.Writer
	configPath string
	logLevel   string
	jsonOutput bool
}

func newApp(stdout io.Writer) *app {
	return &app{stdout: stdout, logLevel: "info"}
}

// flagSet returns a flag set carrying the shared flags. Commands add
// their own flags to it.
func (a *app) flagSet(name string, withJSON bool) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flagSet.StringVar(&a.configPath, "config", "", "config file (default $"+config.EnvironmentVariable+")")
	flagSet.StringVar(&a.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	if withJSON {
		flagSet.BoolVar(&a.jsonOutput, "json", false, "output as JSON")
	}
	return flagSet
}

// environment is everything a command needs to talk to the
// homeserver, with the registry seeded from the on-disk snapshot and
// then from account data.
type environment struct {
	config   *config.Config
	logger   *slog.Logger
	client   *messaging.Client
	session  *messaging.DirectSession
	registry *integrationmanager.Service
	widgets  *widgets.Service
}

// open loads the config, authenticates, and seeds the registry. A
// failure to reach the homeserver while loading is logged and the
// snapshot (if any) is served instead.
func (a *app) open(ctx context.Context) (*environment, error) {
	level, err := cli.ParseLevel(a.logLevel)
	if err != nil {
		return nil, err
	}
	logger := cli.NewCommandLogger(level)

	var cfg *config.Config
	if a.configPath != "" {
		cfg, err = config.LoadFile(a.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	userID, err := cfg.ParsedUserID()
	if err != nil {
		return nil, err
	}

	token, err := secret.ReadFile(cfg.AccessTokenFile)
	if err != nil {
		return nil, fmt.Errorf("reading access token: %w", err)
	}
	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: cfg.HomeserverURL,
		WellKnownURL:  cfg.WellKnownURL,
		Logger:        logger,
	})
	if err != nil {
		token.Close()
		return nil, err
	}
	session := client.SessionFromBuffer(userID, token)

	registry := integrationmanager.New(integrationmanager.Options{
		Store:     session,
		WellKnown: client,
		Default: integrationmanager.Config{
			APIURL: cfg.DefaultManager.APIURL,
			UIURL:  cfg.DefaultManagerUI(),
		},
		Context: ctx,
		Logger:  logger,
	})

	env := &environment{
		config:   cfg,
		logger:   logger,
		client:   client,
		session:  session,
		registry: registry,
		widgets:  widgets.New(widgets.Options{Session: session, Context: ctx, Logger: logger}),
	}
	env.restoreSnapshot()

	if err := registry.Load(ctx); err != nil {
		if messaging.IsAuthFailure(err) {
			env.Close()
			return nil, fmt.Errorf("access token in %s was rejected: %w", cfg.AccessTokenFile, err)
		}
		logger.Warn("loading account data failed; serving cached state", "error", err)
	}
	return env, nil
}

func (env *environment) restoreSnapshot() {
	if env.config.Cache.Path == "" {
		return
	}
	var state integrationmanager.State
	err := snapshot.Read(env.config.Cache.Path, &state)
	switch {
	case err == nil:
		env.registry.Restore(state)
		env.logger.Debug("restored registry snapshot", "path", env.config.Cache.Path, "saved_at", state.SavedAt)
	case errors.Is(err, os.ErrNotExist):
	case errors.Is(err, snapshot.ErrCorrupt):
		env.logger.Warn("discarding corrupt registry snapshot", "path", env.config.Cache.Path, "error", err)
		if err := snapshot.Remove(env.config.Cache.Path); err != nil {
			env.logger.Warn("removing corrupt registry snapshot failed", "error", err)
		}
	default:
		env.logger.Warn("ignoring unreadable registry snapshot", "path", env.config.Cache.Path, "error", err)
	}
}

// saveSnapshot writes the registry cache to disk. Failures are logged:
// the snapshot only speeds up the next start.
func (env *environment) saveSnapshot() {
	if env.config.Cache.Path == "" {
		return
	}
	if err := snapshot.Write(env.config.Cache.Path, env.registry.Snapshot()); err != nil {
		env.logger.Warn("saving registry snapshot failed", "path", env.config.Cache.Path, "error", err)
	}
}

func (env *environment) Close() {
	env.session.Close()
	env.client.CloseIdleConnections()
}

// commandContext is canceled on SIGINT or SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// await starts an asynchronous operation and blocks until its callback
// runs. If ctx ends first the request is canceled.
func await[T any](ctx context.Context, start func(async.Callback[T]) *async.Request) (T, error) {
	type outcome struct {
		value T
		err   error
	}
	results := make(chan outcome, 1)
	request := start(async.Callback[T]{
		OnSuccess: func(value T) { results <- outcome{value: value} },
		OnFailure: func(err error) { results <- outcome{err: err} },
	})
	select {
	case result := <-results:
		return result.value, result.err
	case <-ctx.Done():
		request.Cancel()
		var zero T
		return zero, ctx.Err()
	}
}
