// Package config loads the server configuration from the `server:` section of
// a YAML file.
//
// Config fields:
//   - HTTPPort              — port for the HTTP API (default 3001)
//   - GRPCPort              — port for the gRPC API (default 50051, 0 disables)
//   - LogLevel              — debug | info | warn | error (default info)
//   - State.TTL             — how long a room register lives after its timestamp (default 1h)
//   - State.SweepInterval   — eviction cadence (default 10m)
//   - State.MaxRooms        — cap on tracked rooms (default 10000, -1 unlimited, 0 rejected)
//   - State.LazyExpiry      — hide registers older than TTL before the sweep removes them
//   - HTTP.RateLimitPerIP   — state writes per second per client IP (default 20, 0 disables)
//   - HTTP.MaxBodyBytes     — request body limit for state writes (default 64KiB)
//   - HTTP.CORSOrigins      — allowed CORS origins (default ["*"])
//   - HTTP.TrustedProxies   — proxies whose X-Forwarded-For is honoured (default none)
//
// Load(path) applies defaults before unmarshalling, then validates.
// ApplyEnv(os.Getenv) lets PORT override HTTPPort.
// Watch(ctx, path, fn) reloads the file on change and hands the result to fn.
package config
