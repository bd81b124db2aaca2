// Package toolexecutor validates and runs the tools a model may call against
// a remote desktop.
//
// Invariants:
//   - Tool names are unique.
//   - Arguments are schema-validated before a handler runs.
//   - Unknown, denied and invalid calls produce an error tool result, never an
//     error return. Handler failures are returned to the caller.
//
// Usage:
//
//	exec, _ := toolexecutor.NewDesktopExecutor(desk, toolexecutor.Config{Logger: logger})
//	msg, err := exec.Execute(ctx, call)
package toolexecutor
