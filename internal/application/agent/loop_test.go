package agent_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/turbobackend/worker/internal/application/agent"
	"github.com/turbobackend/worker/internal/application/ports"
	"github.com/turbobackend/worker/internal/testinfra"
	dbs "github.com/turbobackend/worker/pkg/db"
)

// fakeLLM replays a fixed queue of raw response bodies, one per Generate
// call, regardless of the prompt passed in.
type fakeLLM struct {
	responses []string
	calls     int
}

func (f *fakeLLM) Generate(ctx context.Context, prompt, systemInstructions string) (ports.Generation, error) {
	resp := f.responses[f.calls]
	f.calls++
	return ports.Generation{Text: resp, InputTokens: 100, OutputTokens: 50}, nil
}

func (f *fakeLLM) GenerateStream(ctx context.Context, prompt, systemInstructions string, onChunk func(string)) (ports.Generation, error) {
	return f.Generate(ctx, prompt, systemInstructions)
}

func (f *fakeLLM) Model() string { return "gpt-4o-mini" }

// fakeSandbox satisfies ports.Sandbox with no-op bodies; the loop tests
// never issue write/exec commands, so only the interface shape matters.
type fakeSandbox struct{}

func (fakeSandbox) Provision(ctx context.Context, projectID string) (string, error) { return "", nil }
func (fakeSandbox) InitializeNewProject(ctx context.Context, sandboxID string, opts ports.InitOptions) error {
	return nil
}
func (fakeSandbox) InitializeExistingProject(ctx context.Context, sandboxID string) error { return nil }
func (fakeSandbox) Exec(ctx context.Context, sandboxID, command string, timeout time.Duration) (ports.ExecResult, error) {
	return ports.ExecResult{}, nil
}
func (fakeSandbox) Read(ctx context.Context, sandboxID, path string) ([]byte, error) { return nil, nil }
func (fakeSandbox) Write(ctx context.Context, sandboxID, path string, content []byte) error {
	return nil
}
func (fakeSandbox) Delete(ctx context.Context, sandboxID, path string) error { return nil }
func (fakeSandbox) Download(ctx context.Context, sandboxID, path string) (io.ReadCloser, error) {
	return nil, nil
}
func (fakeSandbox) ListGlob(ctx context.Context, sandboxID, dir string, patterns []string) ([]string, error) {
	return nil, nil
}
func (fakeSandbox) Teardown(ctx context.Context, sandboxID string) error { return nil }

// fakePublisher records nothing; it exists only to satisfy ports.Publisher.
type fakePublisher struct{}

func (fakePublisher) PublishProgress(streamID, message string, progress int) {}
func (fakePublisher) PublishSuccess(streamID, content string)                {}
func (fakePublisher) PublishError(streamID, content string)                  {}
func (fakePublisher) PublishTyped(streamID, eventType string, payload any)   {}
func (fakePublisher) PublishLLMChunk(jobID, chunk string)                    {}
func (fakePublisher) PublishLLMDone(jobID string)                            {}

func newTestLoop(responses []string, maxIter int) *agent.Loop {
	llm := &fakeLLM{responses: responses}
	executor := agent.NewCommandExecutor(fakeSandbox{})
	return agent.NewLoop(llm, executor, fakePublisher{}, maxIter)
}

func TestLoopRecoversFromUnescapedNewlineInResponse(t *testing.T) {
	malformed := "{\"reasoning\": \"line one\nline two\", \"commands\": [], \"taskComplete\": true, \"summary\": \"done\"}"
	loop := newTestLoop([]string{malformed}, 5)

	result, err := loop.Run(context.Background(), agent.Spec{
		SandboxID:          "sb_1",
		JobID:              "job_1",
		StreamID:           "stream_1",
		SystemPrompt:       "system",
		InitialUserMessage: "build me a thing",
	}, nil, "turbobackend", "proj_1", "user_1")

	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, "done", result.Summary)
}

func TestLoopRecordsExactlyOneCostRowAcrossMultipleIterations(t *testing.T) {
	pool := dbs.Pool{Pool: testinfra.Pool}
	uowFactory := dbs.NewUoWFactory(pool)
	uow := uowFactory.GetUoW()
	tx, err := uow.Begin()
	require.NoError(t, err)
	defer uow.Rollback()

	responses := []string{
		`{"reasoning": "thinking", "commands": [], "taskComplete": false, "summary": "in progress"}`,
		`{"reasoning": "still thinking", "commands": [], "taskComplete": false, "summary": "in progress"}`,
		`{"reasoning": "done thinking", "commands": [], "taskComplete": true, "summary": "all set"}`,
	}
	loop := newTestLoop(responses, 10)

	result, err := loop.Run(context.Background(), agent.Spec{
		SandboxID:          "sb_2",
		JobID:              "job_2",
		StreamID:           "stream_2",
		SystemPrompt:       "system",
		InitialUserMessage: "build me a bigger thing",
	}, tx, testinfra.Schema, "proj_multi_iter", "user_1")

	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 3, result.Iterations)

	var count int
	err = tx.QueryRow(context.Background(),
		"SELECT COUNT(*) FROM turbobackend.message_costs WHERE job_id = $1", "job_2",
	).Scan(&count)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}
