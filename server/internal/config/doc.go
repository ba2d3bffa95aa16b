// Package config loads the server-side configuration from the `server:` section
// of the config file (an `agent:` key in the same file is ignored).
//
// Config fields:
//   - GRPCPort: dataset receiver port (default 50051)
//   - HTTPPort: REST API, websocket hub and /metrics (default 8080)
//   - Auth: mode apikey|none, key_env, header (default "x-api-key")
//   - Storage: backend memory|sqlite|postgres, path (sqlite, default spc.db),
//     dsn_env (postgres)
//   - Backup: driver none|fs|s3, dir, bucket, region, endpoint, path_style,
//     key (default repository.json)
//   - BroadcastInterval: websocket summary cadence (default 5s)
//   - MaxUploadBytes: multipart upload cap (default 32 MiB)
//   - Alerts: rules over summary fields and webhook targets
//
// Secrets never live in the file: key_env, dsn_env and url_env name
// environment variables. Load(path) applies defaults before unmarshalling,
// then validates.
package config
