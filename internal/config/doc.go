// Package config defines configuration structures for the loldownloader CLI.
//
// Configuration can be provided via:
//   - Command-line flags
//   - Environment variables (LOLDL_ prefix)
//   - YAML configuration file
//
// Sources are layered Default, file, environment, flags and then validated.
//
// # YAML
//
//	version: 0.0.0.130
//	base_url: l3cdn.riotgames.com
//	download_path: /releases/live
//	dest: lol
//	individual: false
//	force: false
//	keep_archives: false
//	codec: deflate
//	bandwidth_limit: 4MiB
//	journal: lol/.loldownloader/journal.db
//	export:
//	  bucket: s3://mirror?region=eu-west-1
//	  prefix: 0.0.0.130
//	retry:
//	  attempts: 5
//	  backoff: 1s
//	  max_backoff: 30s
//
// Logger configures log/slog with a clog console handler, or a JSON handler
// with --log-json.
package config
