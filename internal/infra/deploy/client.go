package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/turbobackend/worker/internal/application/ports"
	"github.com/turbobackend/worker/internal/application/errs"
	"github.com/turbobackend/worker/internal/infra/config"
)

// Client is a thin REST wrapper over the deployment platform's HTTP API.
// No Go SDK exists for this platform, so this is one struct, bearer-token
// auth, JSON in/out, no functional-option constructor.
type Client struct {
	cfg    config.DeployConfig
	client *http.Client
}

var _ ports.DeploymentPlatform = (*Client)(nil)

func NewClient(cfg config.DeployConfig) *Client {
	return &Client{
		cfg: cfg,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type ensureAppRequest struct {
	AppName string `json:"app_name"`
	Org     string `json:"org"`
}

type ensureAppResponse struct {
	AlreadyExisted bool `json:"already_existed"`
}

func (c *Client) EnsureApp(ctx context.Context, appName, org string) (bool, error) {
	var result ensureAppResponse
	if err := c.doJSON(ctx, "POST", "/apps", ensureAppRequest{AppName: appName, Org: org}, &result); err != nil {
		return false, err
	}
	return result.AlreadyExisted, nil
}

type setSecretsRequest struct {
	Secrets map[string]string `json:"secrets"`
}

func (c *Client) SetSecrets(ctx context.Context, appName string, secrets map[string]string) error {
	return c.doJSON(ctx, "POST", fmt.Sprintf("/apps/%s/secrets", appName), setSecretsRequest{Secrets: secrets}, nil)
}

type deployRequest struct {
	APIToken string `json:"-"`
}

type deployResponse struct {
	Output string `json:"output"`
	Status string `json:"status"`
}

// Deploy triggers a deploy and, when DEPLOY_SYNCHRONOUS is set, blocks for
// the platform's response. The production default is asynchronous
// (CI-triggered) deploys; this synchronous path exists for operators who
// want the worker itself to gate on deploy completion.
func (c *Client) Deploy(ctx context.Context, appName, apiToken string) (string, error) {
	var result deployResponse
	if err := c.doJSON(ctx, "POST", fmt.Sprintf("/apps/%s/deploys", appName), nil, &result); err != nil {
		return "", err
	}
	if result.Status == "deploying" {
		return result.Output, errs.RetryableError{Err: fmt.Errorf("deploy for %s still in progress", appName)}
	}
	return result.Output, nil
}

func (c *Client) HealthCheck(ctx context.Context, url string, timeout time.Duration) error {
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("building health check request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshalling request body: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("deploy platform returned status %d", resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
