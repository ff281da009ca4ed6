// Package config loads and validates the catalogd server configuration.
//
// The configuration is a single YAML document. Every field has a default, so an
// empty file (or no file at all) yields a server that keeps state in memory and
// completes every work item through the noop sender:
//
//	listen_address: ":8080"
//	callback_path: /webhook/callback
//	storage:
//	  driver: sqlite
//	  path: ./data/catalogd.db
//	sender:
//	  type: webhook
//	  url: http://executor.internal/workitems
//	  timeout: 30s
//	processor:
//	  pending_deadline: 0s
//	  sweep_interval: 1m
//	catalog:
//	  max_fan_out: 10
//	  data_centers: [dc1, dc2]
//	  networks: [prod, qa]
//
// Struct constraints are declared with go-playground/validator tags and checked
// by Validate. The catalog section can be reloaded at runtime with a Watcher,
// which follows the file through fsnotify and applies each valid revision.
package config
