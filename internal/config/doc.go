// Package config provides configuration types and loading for the
// gateway.
//
// # Features
//
//   - YAML configuration file loading
//   - Environment variable substitution with ${VAR:-default} syntax
//   - Defaults for every optional field
//   - Validation with path-qualified error reporting
//   - File watching for hot-reload of static subscriptions
//
// # Configuration Loading
//
//	cfg, err := config.LoadConfig("gateway.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := config.ValidateConfig(cfg); err != nil {
//	    log.Fatal(err)
//	}
//
// # File Watching
//
//	watcher, err := config.NewWatcher(path, func(cfg *config.GatewayConfig) {
//	    _ = store.Replace(cfg.Gateway.Subscriptions.Static)
//	}, config.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := watcher.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
package config
