// Package toolexecutor registers the tools offered to the model and runs the
// calls it requests.
//
// Invariants:
//   - Tool names are unique.
//   - Function call arguments are schema-validated before execution.
//   - Every call yields exactly one result carrying its call ID; failures are
//     flattened to ToolErrorMessage.
//
// Usage:
//
//	reg := toolexecutor.NewRegistry()
//	_ = reg.Register(toolexecutor.Tool{
//		Name: "echo",
//		Description: "Echo input",
//		Parameters: map[string]interface{}{"type": "object", "properties": map[string]interface{}{"text": map[string]interface{}{"type": "string"}}},
//		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) { return fmt.Sprint(args["text"]), nil },
//	})
//	results := toolexecutor.NewDispatcher(reg, toolexecutor.DefaultDispatcherOptions()).Dispatch(ctx, userID, calls)
package toolexecutor
