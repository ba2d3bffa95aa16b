// Package config loads and watches the agent configuration file.
//
// Top-level types:
//   - Config{Agent}: full config tree parsed from YAML
//   - AgentConfig: agent_id, server_endpoint, inbox_dir, poll_interval,
//     buffer_size, sources [], server_auth
//   - Source: id, type (http|prometheus), endpoint, metric/serial_label/usl/lsl
//     for prometheus sources, auth, tls
//   - AuthConfig: mode (mtls|apikey|bearer|basic|none), cert/key/ca files,
//     header, key_env, token_env, password_env; Key(), Token() and Password()
//     resolve secrets from environment variables
//
// Load(path) reads the YAML file, applies defaults (60s poll, 100 buffer,
// ./inbox), fills agent_id from the hostname, then validates required fields
// and enums.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config. The watch is re-added after each
// event so atomic-save editors (rename then create) keep working.
package config
