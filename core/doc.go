// Package core provides the foundational domain types used across AgentRelay.
// It defines:
//
//   - Agent / Provider configuration (immutable, name-keyed)
//   - Message (the forward/return envelope between call nodes)
//   - Attachment (inline or URL referenced binary content)
//   - Context (the append-only conversation owned by one call node)
//   - The error taxonomy shared by router, runtime and tools
//
// The package intentionally keeps implementation concerns (routing, loop
// orchestration, provider adapters) out of scope so every other package can
// depend on it without cycles.
package core
