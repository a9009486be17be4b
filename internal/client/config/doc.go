// Package config loads runtime configuration for the bizsync CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional config file (json, yaml or toml) named by --config.
//  3. Environment variables prefixed with BIZSYNC_, e.g. BIZSYNC_SERVER.
//  4. Command-line flags registered with RegisterFlags.
//
// Later sources override earlier ones.
//
// # File schema
//
// Keys match the flag names. Durations accept strings like "3s":
//
//	server: 127.0.0.1:50051
//	transport: grpc
//	data_dir: ~/.bizsync
//	online_check_interval: 3s
//	sync_interval: 30s
package config
