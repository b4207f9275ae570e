// Package session is the heart of the core: it owns sessions and their
// transcripts and runs the sampling loop that turns a user message into
// a bounded sequence of model calls and tool executions.
//
// # Pieces
//
//   - Service: session CRUD, message intake, and the glue to commands,
//     the orchestrator, and the self-improvement hooks
//   - Processor: the sampling loop itself — call the model, stream the
//     response, dispatch tool calls in source order, repeat until the
//     model stops asking for tools or a cap fires
//   - Agent profiles: DefaultAgent/CodeAgent/PlanAgent bundles of
//     prompt, tool set, iteration cap, and permissions
//   - SystemPrompt: merges convention files and policy preamble into
//     the per-call system prompt
//   - Compaction: token-threshold summarization plus image-count
//     trimming, both prefix-preserving for prompt caching
//
// # The loop
//
//	service := session.NewServiceWithProcessor(store, providers, tools, checker, "anthropic", modelID)
//	sess, err := service.Create(ctx, workDir, "My Session")
//	msg, parts, err := service.ProcessMessage(ctx, sess, "Refactor this", model, onUpdate)
//
// Each iteration checks cancellation between every suspension point;
// a stop request means no further model or tool calls are issued.
// Tool results — including errors — come back as tool_result parts so
// the model can self-correct; transport errors retry with exponential
// backoff and a bounded elapsed budget; the iteration cap and the hard
// wall-clock deadline terminate the run with a cap_reached error state.
// Every tool invocation lands in the session's append-only
// tool_log.jsonl before the next model call goes out.
//
// # Persistence
//
// A session directory holds the transcript (one JSON line per message),
// per-part files, the tool log, and session-scoped conventions; loading
// the directory reproduces the in-memory state exactly. Metadata
// rewrites go through write-temp-then-rename.
//
// # Events
//
// Every state change publishes on the event bus (message created, part
// updated with streaming deltas, session status, errors), which is what
// the SSE layer forwards to clients. Termination also feeds the
// self-improvement capture hooks when they are attached.
package session
