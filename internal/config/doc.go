// Package config loads the tailalert configuration file (config.yaml).
//
// Top-level types:
//   - Config{Watch, Alerts, Shutdown, Server, Log}: full config tree parsed from YAML
//   - WatchConfig: path, pattern, debounce, backend (fsnotify|poll), poll_interval,
//     start_at_end, follow_recreate
//   - AlertsConfig: poll_interval, delivery_timeout, drain_on_shutdown, history
//     settings and the destinations list
//   - DestinationConfig: type (webhook|slack), url_env/url, token_env, channel;
//     URL() and Token() resolve secrets from environment variables
//   - ServerConfig, AuthConfig: optional status server and its API key auth
//
// Load(path) reads the YAML file, applies defaults (ERROR|CRITICAL pattern, 1s
// debounce, 500ms dispatcher poll, 5s delivery timeout, 2s join timeout), then
// validates required fields and enums. Default() returns the same defaults for
// callers that run without a config file and fill the tree from flags.
package config
