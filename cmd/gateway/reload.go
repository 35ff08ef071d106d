package main

import (
	"context"
	"errors"
	"os"
	"reflect"

	"github.com/vyrodovalexey/avapigw-mtls/internal/config"
	"github.com/vyrodovalexey/avapigw-mtls/internal/observability"
)

var errWatcherDisabled = errors.New("configuration watcher is not running")

// startConfigWatcher watches the configuration file and applies
// reloadable changes. A watcher that fails to start is logged and
// skipped; the gateway keeps serving the startup configuration.
func (a *application) startConfigWatcher(ctx context.Context, configPath string) *config.Watcher {
	watcher, err := config.NewWatcher(configPath, a.applyConfig,
		config.WithLogger(a.logger),
		config.WithErrorCallback(func(err error) {
			a.logger.Warn("configuration reload failed", observability.Error(err))
		}),
	)
	if err != nil {
		a.logger.Warn("failed to create config watcher", observability.Error(err))
		return nil
	}

	if err := watcher.Start(ctx); err != nil {
		a.logger.Warn("failed to start config watcher", observability.Error(err))
		_ = watcher.Stop()
		return nil
	}

	return watcher
}

// applyConfig applies a validated configuration revision. Only the static
// subscriptions of the memory store are reloadable; other changes are
// reported and take effect on restart.
func (a *application) applyConfig(next *config.GatewayConfig) {
	if !reloadableOnly(a.config, next) {
		a.logger.Warn("configuration changes outside subscriptions.static require a restart")
	}

	if a.memoryStore == nil {
		return
	}

	if err := a.memoryStore.Replace(next.Gateway.Subscriptions.Static); err != nil {
		a.logger.Error("failed to reload subscriptions", observability.Error(err))
		return
	}

	a.logger.Info("subscriptions reloaded",
		observability.Int("count", a.memoryStore.Len()),
	)
}

// reloadableOnly reports whether prev and next differ at most in their
// static subscriptions.
func reloadableOnly(prev, next *config.GatewayConfig) bool {
	a, b := *prev, *next
	a.Gateway.Subscriptions.Static = nil
	b.Gateway.Subscriptions.Static = nil
	return reflect.DeepEqual(a, b)
}

// reload re-reads the configuration file immediately, bypassing the
// watcher's debounce.
func (a *application) reload() error {
	if a.watcher == nil {
		return errWatcherDisabled
	}
	return a.watcher.ForceReload()
}

// handleReloadSignals reloads the configuration on every signal received
// from sig until ctx is done.
func (a *application) handleReloadSignals(ctx context.Context, sig <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-sig:
			a.logger.Info("received reload signal", observability.String("signal", s.String()))
			if err := a.reload(); err != nil {
				a.logger.Warn("configuration reload failed", observability.Error(err))
			}
		}
	}
}
