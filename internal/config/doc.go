// Package config loads recipunto's configuration.
//
// # Configuration Discovery
//
// The Load function follows this resolution order:
//
//  1. A .env file in the working directory is loaded into the environment
//  2. If a path is explicitly provided, use it
//  3. Otherwise, use ~/.config/recipunto/config.toml (default)
//  4. If the config file doesn't exist, fall back to defaults
//  5. RECIPUNTO_URL, RECIPUNTO_ANON_KEY, RECIPUNTO_DATA_DIR and
//     RECIPUNTO_LOG_LEVEL override whatever the file says
//
// # TOML Format
//
//	data_dir = "~/.local/share/recipunto"
//	poll_interval = "1s"
//	reconnect_base = "2s"
//	metrics_addr = "127.0.0.1:9464"
//
//	[backend]
//	url = "https://project.supabase.co"
//	anon_key = "..."
//
//	[log]
//	level = "info"      # debug, info, warn, error
//	format = "console"  # console or json
//	file = "~/.local/share/recipunto/recipunto.log"
//
// Every field is optional. Tilde expansion is performed for data_dir and
// log.file. The local storage file always lives at <data_dir>/storage.db.
//
// Missing config files are NOT an error. Commands that talk to the backend
// call RequireBackend to report a missing URL or key.
package config
