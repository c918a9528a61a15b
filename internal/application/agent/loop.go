package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/turbobackend/worker/internal/application/cost"
	"github.com/turbobackend/worker/internal/application/ports"
	"github.com/turbobackend/worker/internal/domain/consts"
)

// DefaultMaxIterations bounds the agentic loop. NewLoop uses it whenever it
// is given a non-positive cap, so a loop is never unbounded.
const DefaultMaxIterations = 25

// Response is the required per-iteration shape the agent must emit.
type Response struct {
	Reasoning    string    `json:"reasoning"`
	Commands     []Command `json:"commands"`
	TaskComplete bool      `json:"taskComplete"`
	Summary      string    `json:"summary"`
	APIBlueprint any       `json:"apiBlueprint,omitempty"`
}

// turn is one entry in the running conversation.
type turn struct {
	role    string // "user" or "assistant"
	content string
}

// DBQuery is one db_query command deferred by the loop for the caller's
// post-agent DDL phase.
type DBQuery struct {
	Query      string
	SchemaName string
	QueryType  string
}

// Result is what the loop returns once it terminates, successfully or not.
type Result struct {
	Success       bool
	Iterations    int
	FilesModified map[consts.WriteKind][]string
	DBQueries     []DBQuery
	Summary       string
	APIBlueprint  any
	TotalCost     float64
}

// Loop runs the bounded agent/sandbox conversation.
type Loop struct {
	llm       ports.LLM
	executor  *CommandExecutor
	publisher ports.Publisher
	maxIter   int
}

func NewLoop(llm ports.LLM, executor *CommandExecutor, publisher ports.Publisher, maxIterations int) *Loop {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	return &Loop{llm: llm, executor: executor, publisher: publisher, maxIter: maxIterations}
}

// Spec is the input to one loop run.
type Spec struct {
	SandboxID  string
	JobID      string
	StreamID   string
	SystemPrompt string
	InitialUserMessage string
}

// Run drives the loop to completion or exhaustion of the iteration cap. On
// exit it records exactly one aggregated cost entry, regardless of how many
// LLM calls the loop made along the way.
func (l *Loop) Run(ctx context.Context, spec Spec, tx pgx.Tx, schema, projectID, userID string) (Result, error) {
	conversation := []turn{{role: "user", content: spec.InitialUserMessage}}

	filesModified := map[consts.WriteKind][]string{}
	var dbQueries []DBQuery
	var totalInputTokens, totalOutputTokens int
	var lastSummary string
	var apiBlueprint any
	success := false
	var runErr error

	startedAt := time.Now()

	for iteration := 1; iteration <= l.maxIter; iteration++ {
		l.publisher.PublishProgress(spec.StreamID, fmt.Sprintf("agent iteration %d", iteration), iterationProgress(iteration, l.maxIter))

		prompt := serializeConversation(conversation)
		generation, err := l.llm.Generate(ctx, prompt, spec.SystemPrompt)
		if err != nil {
			runErr = fmt.Errorf("agentic loop LLM call failed on iteration %d: %w", iteration, err)
			break
		}
		totalInputTokens += generation.InputTokens
		totalOutputTokens += generation.OutputTokens

		response, parseErr := parseResponse(generation.Text)
		if parseErr != nil {
			slog.Error("agent response failed to parse after sanitize retry", "iteration", iteration, "err", parseErr)
			conversation = append(conversation, turn{role: "assistant", content: generation.Text})
			conversation = append(conversation, turn{role: "user", content: "Your last response was not valid JSON. Re-emit a single valid JSON document matching the required shape."})
			continue
		}

		conversation = append(conversation, turn{role: "assistant", content: generation.Text})

		results := l.executor.ExecuteBatch(ctx, spec.SandboxID, response.Commands)
		for i, cmd := range response.Commands {
			switch cmd.Kind {
			case CommandWrite:
				kind := classifyWrite(cmd.Path)
				filesModified[kind] = append(filesModified[kind], cmd.Path)
			case CommandDBQuery:
				dbQueries = append(dbQueries, DBQuery{Query: cmd.Query, SchemaName: cmd.SchemaName, QueryType: cmd.QueryType})
			}
			_ = results[i]
		}

		lastSummary = response.Summary
		if response.APIBlueprint != nil {
			apiBlueprint = response.APIBlueprint
		}

		conversation = append(conversation, turn{role: "user", content: fmt.Sprintf("Command results:\n%s\n\nContinue, or set taskComplete=true if the request is fully satisfied.", serializeResults(results))})

		if response.TaskComplete {
			success = true
			break
		}
	}

	totalCost := cost.CostFor(totalInputTokens, totalOutputTokens, l.llm.Model())
	if tx != nil {
		_ = cost.RecordMessage(ctx, tx, schema, cost.Entry{
			ProjectID:     projectID,
			JobID:         spec.JobID,
			UserID:        userID,
			PromptContent: spec.InitialUserMessage,
			MessageType:   "agentic-container-execution",
			Model:         l.llm.Model(),
			InputTokens:   totalInputTokens,
			OutputTokens:  totalOutputTokens,
			StartedAt:     startedAt,
		})
	}
	if runErr != nil {
		return Result{}, runErr
	}

	return Result{
		Success:       success,
		Iterations:    len(conversation) / 2,
		FilesModified: filesModified,
		DBQueries:     dbQueries,
		Summary:       lastSummary,
		APIBlueprint:  apiBlueprint,
		TotalCost:     totalCost,
	}, nil
}

// iterationProgress maps the current iteration onto the 30-70 band the
// pipelines reserve for the agent run, monotonically non-decreasing across
// the loop's lifetime.
func iterationProgress(iteration, maxIter int) int {
	const start, end = 30, 70
	if maxIter <= 1 {
		return end
	}
	progress := start + (end-start)*(iteration-1)/(maxIter-1)
	if progress > end {
		progress = end
	}
	return progress
}

// classifyWrite applies the static path rule: route-ish, middleware,
// model, utility, or config paths are tagged accordingly, everything else
// falls into "other".
func classifyWrite(path string) consts.WriteKind {
	lower := strings.ToLower(path)
	switch {
	case strings.Contains(lower, "/api/"):
		return consts.WriteRoute
	case strings.Contains(lower, "middleware"):
		return consts.WriteMiddleware
	case strings.Contains(lower, "model"):
		return consts.WriteModel
	case strings.Contains(lower, "utility"), strings.Contains(lower, "utils"):
		return consts.WriteUtility
	case strings.Contains(lower, "config"):
		return consts.WriteConfig
	default:
		return consts.WriteOther
	}
}

func serializeConversation(conversation []turn) string {
	var b strings.Builder
	for _, t := range conversation {
		fmt.Fprintf(&b, "[%s]\n%s\n\n", t.role, t.content)
	}
	return b.String()
}

func serializeResults(results []CommandResult) string {
	data, err := json.Marshal(results)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// parseResponse parses the agent's raw text as Response, first trying it
// verbatim and then retrying after sanitizing control characters that
// commonly appear unescaped inside string values.
func parseResponse(raw string) (Response, error) {
	var resp Response
	if err := json.Unmarshal([]byte(raw), &resp); err == nil {
		return resp, nil
	}

	sanitized := sanitizeJSON(raw)
	if err := json.Unmarshal([]byte(sanitized), &resp); err == nil {
		return resp, nil
	}

	return Response{}, fmt.Errorf("agent response is not valid JSON even after sanitizing")
}

// sanitizeJSON escapes raw control characters (most commonly a literal
// newline inside a string value) that break json.Unmarshal but are
// otherwise harmless to the intended content.
func sanitizeJSON(raw string) string {
	var b strings.Builder
	inString := false
	escaped := false
	for _, r := range raw {
		if inString {
			switch {
			case escaped:
				escaped = false
				b.WriteRune(r)
				continue
			case r == '\\':
				escaped = true
				b.WriteRune(r)
				continue
			case r == '"':
				inString = false
				b.WriteRune(r)
				continue
			case r == '\n':
				b.WriteString("\\n")
				continue
			case r == '\t':
				b.WriteString("\\t")
				continue
			case r == '\r':
				b.WriteString("\\r")
				continue
			}
			b.WriteRune(r)
			continue
		}
		if r == '"' {
			inString = true
		}
		b.WriteRune(r)
	}
	return b.String()
}
