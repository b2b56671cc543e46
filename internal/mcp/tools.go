package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// registerTools registers the inspection tools and, in full mode, the
// control tools
func (s *Server) registerTools() {
	// Inspection (both modes)
	s.registerStatus()
	s.registerThreads()
	s.registerStack()
	s.registerScope()
	s.registerEvaluate()
	s.registerExpand()
	s.registerEvents()
	s.registerBreakpoints()

	// Control (full mode only)
	if s.config.CanUseControlTools() {
		s.registerContinue()
		s.registerStep()
		s.registerPause()
		s.registerSetVariable()
		s.registerTerminate()
		s.registerSetBreakpoint()
		s.registerRemoveBreakpoint()
		s.registerEnableBreakpoint()
	}
}

func threadIDParam() mcp.ToolOption {
	return mcp.WithNumber("threadId",
		mcp.Required(),
		mcp.Description("Thread ID from bridge_threads or a stopped event"),
	)
}

func frameIDParam() mcp.ToolOption {
	return mcp.WithNumber("frameId",
		mcp.Required(),
		mcp.Description("Frame ID from bridge_stack"),
	)
}

func fileParam() mcp.ToolOption {
	return mcp.WithString("file",
		mcp.Required(),
		mcp.Description("Source file path. Relative paths are resolved against the engine's source root."),
	)
}

func lineParam() mcp.ToolOption {
	return mcp.WithNumber("line",
		mcp.Required(),
		mcp.Description("1-based line number"),
	)
}

// Inspection Tools

func (s *Server) registerStatus() {
	tool := mcp.NewTool("bridge_status",
		mcp.WithDescription("Connection state of the engine bridge and a summary of the cached threads, variables and breakpoints."),
	)
	s.addTool(tool, s.handleStatus)
}

func (s *Server) registerThreads() {
	tool := mcp.NewTool("bridge_threads",
		mcp.WithDescription("Refresh the thread list from the remote agent. Threads missing from the answer are forgotten."),
	)
	s.addTool(tool, s.handleThreads)
}

func (s *Server) registerStack() {
	tool := mcp.NewTool("bridge_stack",
		mcp.WithDescription("Fetch the stack frames of a stopped thread."),
		threadIDParam(),
	)
	s.addTool(tool, s.handleStack)
}

func (s *Server) registerScope() {
	tool := mcp.NewTool("bridge_scope",
		mcp.WithDescription("Fetch the root variables of a frame. Expandable variables carry their address in variablesReference."),
		threadIDParam(),
		frameIDParam(),
	)
	s.addTool(tool, s.handleScope)
}

func (s *Server) registerEvaluate() {
	tool := mcp.NewTool("bridge_evaluate",
		mcp.WithDescription("Look up a variable or a dotted path such as 'obj.field.inner' in a frame. Parts not yet known are evaluated or expanded remotely."),
		threadIDParam(),
		frameIDParam(),
		mcp.WithString("expression",
			mcp.Required(),
			mcp.Description("Variable name or dotted path"),
		),
	)
	s.addTool(tool, s.handleEvaluate)
}

func (s *Server) registerExpand() {
	tool := mcp.NewTool("bridge_expand",
		mcp.WithDescription("List the children of an expandable variable. Large collections are fetched in pages; call again to load the rest."),
		threadIDParam(),
		frameIDParam(),
		mcp.WithNumber("addr",
			mcp.Required(),
			mcp.Description("Variable address (variablesReference of an expandable variable)"),
		),
	)
	s.addTool(tool, s.handleExpand)
}

func (s *Server) registerEvents() {
	tool := mcp.NewTool("bridge_events",
		mcp.WithDescription("Recent notifications sent to the debugging frontend (stopped, continued, thread, output, breakpoint, terminated), oldest first."),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of events to return (default: 50)"),
		),
	)
	s.addTool(tool, s.handleEvents)
}

func (s *Server) registerBreakpoints() {
	tool := mcp.NewTool("bridge_breakpoints",
		mcp.WithDescription("List the breakpoints registered on the engine side."),
	)
	s.addTool(tool, s.handleBreakpoints)
}

// Control Tools

func (s *Server) registerContinue() {
	tool := mcp.NewTool("bridge_continue",
		mcp.WithDescription("Resume every stopped thread."),
	)
	s.addTool(tool, s.handleContinue)
}

func (s *Server) registerStep() {
	tool := mcp.NewTool("bridge_step",
		mcp.WithDescription("Step one thread. The stop is reported as a stopped event; use bridge_events to see it."),
		threadIDParam(),
		mcp.WithString("stepKind",
			mcp.Description("'over' (default), 'into' or 'out'"),
			mcp.Enum("over", "into", "out"),
		),
		mcp.WithString("stepUnit",
			mcp.Description("'line' (default), 'statement' or 'instruction'"),
			mcp.Enum("line", "statement", "instruction"),
		),
	)
	s.addTool(tool, s.handleStep)
}

func (s *Server) registerPause() {
	tool := mcp.NewTool("bridge_pause",
		mcp.WithDescription("Ask the remote agent to break. Some agents do not support pausing."),
	)
	s.addTool(tool, s.handlePause)
}

func (s *Server) registerSetVariable() {
	tool := mcp.NewTool("bridge_set_variable",
		mcp.WithDescription("Assign a new value to a scalar variable."),
		threadIDParam(),
		frameIDParam(),
		mcp.WithNumber("addr",
			mcp.Required(),
			mcp.Description("Variable address"),
		),
		mcp.WithString("value",
			mcp.Required(),
			mcp.Description("New value as source text"),
		),
	)
	s.addTool(tool, s.handleSetVariable)
}

func (s *Server) registerTerminate() {
	tool := mcp.NewTool("bridge_terminate",
		mcp.WithDescription("Stop the debugged program and drop the connection to the host bridge."),
	)
	s.addTool(tool, s.handleTerminate)
}

func (s *Server) registerSetBreakpoint() {
	tool := mcp.NewTool("bridge_set_breakpoint",
		mcp.WithDescription("Set a breakpoint or change its condition. Lines that do not look executable are registered disabled."),
		fileParam(),
		lineParam(),
		mcp.WithString("condition",
			mcp.Description("Condition expression"),
		),
		mcp.WithString("conditionType",
			mcp.Description("'whenTrue' (default when a condition is given) or 'whenChanged'"),
			mcp.Enum("whenTrue", "whenChanged"),
		),
	)
	s.addTool(tool, s.handleSetBreakpoint)
}

func (s *Server) registerRemoveBreakpoint() {
	tool := mcp.NewTool("bridge_remove_breakpoint",
		mcp.WithDescription("Remove the breakpoint at file:line."),
		fileParam(),
		lineParam(),
	)
	s.addTool(tool, s.handleRemoveBreakpoint)
}

func (s *Server) registerEnableBreakpoint() {
	tool := mcp.NewTool("bridge_enable_breakpoint",
		mcp.WithDescription("Enable or disable the breakpoint at file:line."),
		fileParam(),
		lineParam(),
		mcp.WithBoolean("enabled",
			mcp.Required(),
			mcp.Description("true to enable, false to disable"),
		),
	)
	s.addTool(tool, s.handleEnableBreakpoint)
}
