// Command ctrsim runs the simulated console kernel on a host.
//
// It boots a kernel with the built-in srv:, err:f and cfg:u services,
// launches a demo application that exercises IPC, shared memory and kernel
// synchronization, and serves an introspection API.
//
// Configuration:
//   - Environment variables prefixed with CTRSIM_ (see internal/infrastructure/config)
//   - CLI flags (override env vars)
//
// Usage:
//
//	# Default: json logs, debug server on 127.0.0.1:8089
//	./ctrsim
//
//	# Custom memory layout, colored debug logs, three demo rounds
//	CTRSIM_DEMO_ROUNDS=3 ./ctrsim -layout layout.toml -dev
//
// Endpoints:
//
//	GET    /health
//	GET    /metrics, /metrics/json
//	GET    /debug/processes, /debug/handles?pid=, /debug/memory?pid=
//	GET    /debug/services, /debug/console, /debug/errors
//	GET    /apps, /apps/:id
//	POST   /apps               {"name": "demo", "rounds": 3, "interval_ms": 500}
//	DELETE /apps/:id
package main
