package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/turbobackend/worker/internal/application/ports"
	"github.com/turbobackend/worker/internal/infra/config"
)

// DockerSandbox provisions one container per project, keyed by project id,
// and exposes a filesystem + shell capability set over the Docker engine
// API. The worker process never shells out to a local `docker` or `git`
// binary; every operation goes through the SDK or through Exec inside the
// container.
type DockerSandbox struct {
	cli *client.Client
	cfg config.SandboxConfig

	mu         sync.Mutex
	containers map[string]string // sandboxID -> container id
}

var _ ports.Sandbox = (*DockerSandbox)(nil)

func NewDockerSandbox(cfg config.SandboxConfig) (*DockerSandbox, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	if _, err := cli.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping docker daemon: %w", err)
	}
	return &DockerSandbox{cli: cli, cfg: cfg, containers: make(map[string]string)}, nil
}

func (d *DockerSandbox) Provision(ctx context.Context, projectID string) (string, error) {
	reader, err := d.cli.ImagePull(ctx, d.cfg.Image, image.PullOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to pull sandbox image: %w", err)
	}
	defer reader.Close()
	_, _ = io.Copy(io.Discard, reader)

	name := "sandbox-" + projectID
	cfg := &container.Config{
		Image: d.cfg.Image,
		Cmd:   []string{"sleep", "infinity"},
		Labels: map[string]string{
			"project_id": projectID,
			"service":    "turbobackend-worker",
		},
	}
	hostCfg := &container.HostConfig{
		RestartPolicy: container.RestartPolicy{Name: "no"},
	}

	resp, err := d.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	if err != nil {
		return "", fmt.Errorf("failed to create sandbox container: %w", err)
	}
	if err := d.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("failed to start sandbox container: %w", err)
	}

	d.mu.Lock()
	d.containers[projectID] = resp.ID
	d.mu.Unlock()

	slog.Info("sandbox provisioned", "project_id", projectID, "container", resp.ID[:12])
	return projectID, nil
}

func (d *DockerSandbox) InitializeNewProject(ctx context.Context, sandboxID string, opts ports.InitOptions) error {
	installCtx, cancel := context.WithTimeout(ctx, d.cfg.InstallTimeout)
	defer cancel()

	commands := []string{"npm init -y", "npm install express"}
	if opts.InstallDatabaseDriver {
		commands = append(commands, "npm install pg")
	}
	if opts.InstallAuthSDK {
		commands = append(commands, "npm install @clerk/clerk-sdk-node")
	}
	if opts.InstallPaymentSDK {
		commands = append(commands, "npm install stripe")
	}

	for _, cmd := range commands {
		if _, err := d.Exec(installCtx, sandboxID, cmd, d.cfg.InstallTimeout); err != nil {
			return fmt.Errorf("failed to run init command %q: %w", cmd, err)
		}
	}

	for k, v := range opts.EnvVars {
		if _, err := d.Exec(ctx, sandboxID, fmt.Sprintf("echo %q >> .env", k+"="+v), d.cfg.ExecTimeout); err != nil {
			return fmt.Errorf("failed to write env var %s: %w", k, err)
		}
	}
	for k := range opts.PlaceholderEnvVars {
		if _, err := d.Exec(ctx, sandboxID, fmt.Sprintf("echo %q >> .env", k+"=<YOUR_"+k+">"), d.cfg.ExecTimeout); err != nil {
			return fmt.Errorf("failed to write placeholder env var %s: %w", k, err)
		}
	}
	return nil
}

func (d *DockerSandbox) InitializeExistingProject(ctx context.Context, sandboxID string) error {
	return nil
}

func (d *DockerSandbox) Exec(ctx context.Context, sandboxID, command string, timeout time.Duration) (ports.ExecResult, error) {
	return d.execRaw(ctx, sandboxID, []string{"sh", "-c", command}, timeout)
}

func (d *DockerSandbox) Teardown(ctx context.Context, sandboxID string) error {
	d.mu.Lock()
	containerID, ok := d.containers[sandboxID]
	d.mu.Unlock()
	if !ok {
		containerID = "sandbox-" + sandboxID
	}

	timeoutSeconds := 10
	if err := d.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeoutSeconds}); err != nil {
		slog.Warn("failed to stop sandbox container", "container", containerID, "err", err)
	}
	if err := d.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("failed to remove sandbox container: %w", err)
	}

	d.mu.Lock()
	delete(d.containers, sandboxID)
	d.mu.Unlock()

	slog.Info("sandbox torn down", "project_id", sandboxID)
	return nil
}

func (d *DockerSandbox) containerFor(sandboxID string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if id, ok := d.containers[sandboxID]; ok {
		return id
	}
	return "sandbox-" + sandboxID
}

func (d *DockerSandbox) Read(ctx context.Context, sandboxID, filePath string) ([]byte, error) {
	result, err := d.execRaw(ctx, sandboxID, []string{"cat", filePath}, d.cfg.ExecTimeout)
	if err != nil {
		return nil, err
	}
	if result.ExitCode != 0 {
		return nil, fmt.Errorf("reading %s failed: %s", filePath, result.Stderr)
	}
	return []byte(result.Stdout), nil
}

func (d *DockerSandbox) Write(ctx context.Context, sandboxID, filePath string, content []byte) error {
	mkdir := fmt.Sprintf("mkdir -p %q", path.Dir(filePath))
	if _, err := d.execRaw(ctx, sandboxID, []string{"sh", "-c", mkdir}, d.cfg.ExecTimeout); err != nil {
		return err
	}
	script := fmt.Sprintf("cat > %q", filePath)
	result, err := d.execStdin(ctx, sandboxID, []string{"sh", "-c", script}, content, d.cfg.ExecTimeout)
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("writing %s failed: %s", filePath, result.Stderr)
	}
	return nil
}

func (d *DockerSandbox) Delete(ctx context.Context, sandboxID, filePath string) error {
	result, err := d.execRaw(ctx, sandboxID, []string{"rm", "-rf", filePath}, d.cfg.ExecTimeout)
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("deleting %s failed: %s", filePath, result.Stderr)
	}
	return nil
}

func (d *DockerSandbox) Download(ctx context.Context, sandboxID, filePath string) (io.ReadCloser, error) {
	data, err := d.Read(ctx, sandboxID, filePath)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (d *DockerSandbox) ListGlob(ctx context.Context, sandboxID, dir string, patterns []string) ([]string, error) {
	nameArgs := make([]string, 0, len(patterns))
	for i, p := range patterns {
		if i > 0 {
			nameArgs = append(nameArgs, "-o")
		}
		nameArgs = append(nameArgs, "-name", p)
	}
	args := append([]string{"find", dir, "-type", "f", "("}, nameArgs...)
	args = append(args, ")")

	result, err := d.execRaw(ctx, sandboxID, args, d.cfg.ExecTimeout)
	if err != nil {
		return nil, err
	}
	if result.ExitCode != 0 {
		return nil, fmt.Errorf("listing %s failed: %s", dir, result.Stderr)
	}
	lines := strings.Split(strings.TrimSpace(result.Stdout), "\n")
	var files []string
	for _, l := range lines {
		if l != "" {
			files = append(files, l)
		}
	}
	return files, nil
}

func (d *DockerSandbox) execRaw(ctx context.Context, sandboxID string, cmd []string, timeout time.Duration) (ports.ExecResult, error) {
	return d.execStdin(ctx, sandboxID, cmd, nil, timeout)
}

func (d *DockerSandbox) execStdin(ctx context.Context, sandboxID string, cmd []string, stdin []byte, timeout time.Duration) (ports.ExecResult, error) {
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	containerID := d.containerFor(sandboxID)
	execCfg := container.ExecOptions{
		Cmd:          cmd,
		AttachStdin:  stdin != nil,
		AttachStdout: true,
		AttachStderr: true,
	}

	execResp, err := d.cli.ContainerExecCreate(execCtx, containerID, execCfg)
	if err != nil {
		return ports.ExecResult{}, fmt.Errorf("exec create failed: %w", err)
	}

	attachResp, err := d.cli.ContainerExecAttach(execCtx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return ports.ExecResult{}, fmt.Errorf("exec attach failed: %w", err)
	}
	defer attachResp.Close()

	if stdin != nil {
		_, _ = attachResp.Conn.Write(stdin)
		_ = attachResp.CloseWrite()
	}

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attachResp.Reader); err != nil {
		return ports.ExecResult{}, fmt.Errorf("exec stream read failed: %w", err)
	}

	inspect, err := d.cli.ContainerExecInspect(execCtx, execResp.ID)
	if err != nil {
		return ports.ExecResult{}, fmt.Errorf("exec inspect failed: %w", err)
	}

	return ports.ExecResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: inspect.ExitCode,
	}, nil
}
