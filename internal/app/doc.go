// Package app is the composition root for recipunto.
//
// # Overview
//
// Open loads the configuration, builds the logger and opens the shared
// storage file, then wires every component on top of it. Start launches the
// background work and Close tears it down in reverse order. Both the TUI and
// the one-shot CLI commands go through the same App so they observe the same
// persisted state.
//
// # Wiring
//
//	┌──────────────┐
//	│   Open()     │
//	└──────┬───────┘
//	       ├─────> config.Load()          TOML + .env + environment
//	       ├─────> logging.New()          stderr, or the log file for the TUI
//	       ├─────> storage.Open()         shared SQLite key/value file
//	       ├─────> events / persist       bus, search term, toggles, tasks
//	       ├─────> cache.NewBoxCache()    with Prometheus hit/miss/evict hooks
//	       ├─────> backend + realtime     only when a backend is configured
//	       ├─────> boxsync.New()          reconnect-then-refetch box syncer
//	       └─────> auth.NewManager()      session pushed into both clients
//
//	Start():
//	  storage.Watch     foreign writes from other processes
//	  cache.Run         periodic expiry sweep
//	  Syncer.Start      change feed session loop
//	  keepSession       token refresh ahead of expiry
//	  metrics server    optional, /metrics on metrics_addr
//
// # Offline mode
//
// Without backend_url and anon_key the App still opens. Local components
// (toggles, tasks, selection, drafts, achievements) work normally; box reads
// are served from the persisted cache and mutations return
// config.ErrNoBackend.
//
// # Notifications
//
// Syncer snapshots feed notify.Triggers, which turns boxes becoming full and
// newly seen boxes into notifications. Achievement unlocks from the tracker
// are routed to the same center.
package app
