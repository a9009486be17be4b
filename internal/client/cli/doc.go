// Package cli provides the bizsync command-line client.
//
// It wires configuration, the local store (SQLite with a JSON snapshot
// fallback), the remote transport, the connectivity watcher and the sync
// engine, and exposes them through cobra commands:
//
//	bizsync login | logout | register
//	bizsync create <type> k=v...
//	bizsync get <type> <id>
//	bizsync list <type> [--where k=v] [--sort f] [--limit n] [-o table|json|yaml]
//	bizsync update <type> <id> k=v...
//	bizsync delete <type> <id>
//	bizsync sync [--pull] | status | clear
//	bizsync deadletters list | retry <id> | discard <id>
//	bizsync shell
//
// One-shot commands probe connectivity once and push pending changes
// before exiting. The shell keeps the watcher and the engine running in
// the background while it reads commands.
package cli
