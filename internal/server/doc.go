// Package server is the UI bridge: the chi-based HTTP surface that a
// local web client drives the orchestrator through.
//
// # Shape
//
// One Server owns the router, the session service, the provider and
// tool registries, the MCP client, and the event bus. Construction in
// New wires the whole core together — selector, coordinator, task and
// knowledge stores, self-improvement hooks, VCS watcher — so a caller
// only hands in config, storage, and the two registries.
//
// # Endpoints
//
//   - /session/*: session lifecycle, messages, abort, fork, diff,
//     permissions, slash commands, one-off shell runs
//   - /stream, /event, /global/event: SSE streams (firehose, per-session
//     filtered, bare firehose)
//   - /file/*, /find/*: file browsing, git status, text/file/symbol
//     search
//   - /config/*, /provider/*, /auth/*: configuration and providers
//   - /mcp/*: external MCP server management
//   - /command/*: slash command listing and execution
//   - /client-tools/*: client-registered tool round trips
//   - /tui/*: remote-control surface for attached UI clients
//   - /metrics: Prometheus scrape endpoint
//
// # Concurrency contract
//
// Handlers never run a sampling loop inline: a message POST enqueues
// the work and returns the session state immediately, and a second POST
// while the session runs is rejected with a conflict. Blocking work
// (LLM calls, tool bodies, file walks) happens on worker goroutines;
// the SSE streams fan state changes out through per-subscriber bounded
// queues that drop on overflow rather than stalling the bus.
//
// Responses share one envelope: writeJSON for payloads, writeError for
// coded errors ({"error":{"code","message"}}).
package server
