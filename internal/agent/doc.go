// Package agent provides the LLM-backed agent that executes workflow tasks.
// It layers conversational memory, call timeouts, and tool invocation on top
// of the provider-neutral llm.Client contract.
package agent
