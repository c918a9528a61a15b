package agent

import (
	"context"
	"time"

	"github.com/turbobackend/worker/internal/application/ports"
)

// CommandKind tags the variant of one agent-emitted command.
type CommandKind string

const (
	CommandExecute CommandKind = "execute"
	CommandWrite   CommandKind = "write"
	CommandRead    CommandKind = "read"
	CommandDelete  CommandKind = "delete"
	CommandDBQuery CommandKind = "db_query"
)

// Command is one structured instruction emitted by the agent for a single
// iteration. Only the fields relevant to Kind are populated.
type Command struct {
	Kind        CommandKind `json:"type"`
	Command     string      `json:"command,omitempty"`
	Path        string      `json:"path,omitempty"`
	Content     string      `json:"content,omitempty"`
	Query       string      `json:"query,omitempty"`
	SchemaName  string      `json:"schemaName,omitempty"`
	QueryType   string      `json:"queryType,omitempty"`
}

// CommandResult is the outcome of attempting one Command.
type CommandResult struct {
	Command Command
	Success bool
	Output  string
	Error   string
}

const (
	execTimeout = 120 * time.Second
)

// CommandExecutor translates one agent iteration's command list into
// Sandbox calls.
type CommandExecutor struct {
	sandbox ports.Sandbox
}

func NewCommandExecutor(sandbox ports.Sandbox) *CommandExecutor {
	return &CommandExecutor{sandbox: sandbox}
}

// ExecuteBatch runs every command against the sandbox in order. A failing
// command is recorded in its own result and does not stop the remaining
// commands in the batch.
func (e *CommandExecutor) ExecuteBatch(ctx context.Context, sandboxID string, commands []Command) []CommandResult {
	results := make([]CommandResult, 0, len(commands))
	for _, cmd := range commands {
		results = append(results, e.execute(ctx, sandboxID, cmd))
	}
	return results
}

func (e *CommandExecutor) execute(ctx context.Context, sandboxID string, cmd Command) CommandResult {
	switch cmd.Kind {
	case CommandExecute:
		res, err := e.sandbox.Exec(ctx, sandboxID, cmd.Command, execTimeout)
		if err != nil {
			return failure(cmd, err)
		}
		if res.ExitCode != 0 {
			return CommandResult{Command: cmd, Success: false, Output: res.Stdout, Error: res.Stderr}
		}
		return CommandResult{Command: cmd, Success: true, Output: res.Stdout}

	case CommandWrite:
		if err := e.sandbox.Write(ctx, sandboxID, cmd.Path, []byte(cmd.Content)); err != nil {
			return failure(cmd, err)
		}
		return CommandResult{Command: cmd, Success: true}

	case CommandRead:
		content, err := e.sandbox.Read(ctx, sandboxID, cmd.Path)
		if err != nil {
			return failure(cmd, err)
		}
		return CommandResult{Command: cmd, Success: true, Output: string(content)}

	case CommandDelete:
		if err := e.sandbox.Delete(ctx, sandboxID, cmd.Path); err != nil {
			return failure(cmd, err)
		}
		return CommandResult{Command: cmd, Success: true}

	case CommandDBQuery:
		// Accepted and stored but never executed here: db_query commands are
		// deferred and aggregated by the agentic loop for the post-agent
		// DDL phase.
		return CommandResult{Command: cmd, Success: true}

	default:
		return CommandResult{Command: cmd, Success: false, Error: "unknown command type: " + string(cmd.Kind)}
	}
}

func failure(cmd Command, err error) CommandResult {
	return CommandResult{Command: cmd, Success: false, Error: err.Error()}
}
