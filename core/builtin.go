package core

// Names of the two builtin capabilities every agent sees in addition to the
// registered tools. They are handled by the runtime itself and never resolve
// to a Tool implementation.
const (
	// BuiltinCallAgent delegates work to another agent by name.
	BuiltinCallAgent = "call_agent"
	// BuiltinFinish terminates the current call node with a result message.
	BuiltinFinish = "finish"
)
