// Package agent drives a model against a remote desktop: capture the screen,
// stream the model, run the tools it asks for, repeat.
//
// Invariants:
//   - One iteration at a time; tool calls run sequentially in model order.
//   - Every assistant turn is appended once, with its text, tool calls and
//     continuation token unchanged.
//   - Each tool result is appended before the next model request.
//   - History only grows. Older screenshots are replaced by ImagePlaceholder,
//     never removed.
//
// Usage:
//
//	orch, _ := agent.New(agent.Config{Provider: p, Tools: exec, Screen: desk.Screen})
//	err := orch.Run(ctx, []llm.Message{llm.NewTextMessage(llm.RoleUser, "open the editor")},
//		func(r agent.Result) { fmt.Println(r.Kind, r.Text) })
package agent
