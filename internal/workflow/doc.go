// Package workflow implements the task orchestration engine: an ordered task
// pool, sequential and queue-backed concurrent execution strategies with loop
// semantics, and JSON state persistence for pause/resume across processes.
package workflow
