// LogLens watches log files, summarizes every change and serves an
// authenticated chat gateway in front of a local or remote model.
//
// It provides:
//   - File watcher with debounce, extension filter and ignore globs
//   - Summary pipeline fanning out to a live feed, NATS and webhooks
//   - Chat gateway with API key auth and per-key rate limiting
//   - Runtime switching between local and remote providers
package main

import "github.com/loglens/loglens/internal/cli"

func main() {
	cli.Execute()
}
