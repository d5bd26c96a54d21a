// Package llm defines the reply-generation contract and its implementations.
//
// Generator is the interface the orchestrator depends on. The OpenAI
// implementation talks to the chat completions API and runs a single
// tool-call round when the model requests tools; Mock echoes input back for
// keyless development setups. The system prompt comes from a configured file
// with an embedded fallback.
package llm
