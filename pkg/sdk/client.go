package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/felixgeelhaar/mcp-go/client"
	"github.com/felixgeelhaar/milestone/pkg/domain/roadmap"
)

const roadmapURI = "milestone://roadmap"

// SupportedSchemaMajor is the roadmap resource schema major this client reads.
const SupportedSchemaMajor = "1"

type options struct {
	timeout      time.Duration
	maxAttempts  int
	initialDelay time.Duration
}

// Option configures the client.
type Option func(*options)

// WithTimeout sets the per-call timeout. milestone_advise waits for the
// server's AI provider, so keep it above the provider timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithRetry sets the attempts for transport failures. Tool errors are final.
func WithRetry(maxAttempts int, initialDelay time.Duration) Option {
	return func(o *options) {
		o.maxAttempts = maxAttempts
		o.initialDelay = initialDelay
	}
}

// Client is a typed Go client for the milestone MCP server.
type Client struct {
	mcp      *client.Client
	retryCfg retry.Config
}

// NewClient creates a client over the given MCP transport.
func NewClient(transport client.Transport, opts ...Option) *Client {
	o := options{timeout: 30 * time.Second, maxAttempts: 3, initialDelay: 500 * time.Millisecond}
	for _, fn := range opts {
		fn(&o)
	}
	return &Client{
		mcp: client.New(transport, client.WithTimeout(o.timeout)),
		retryCfg: retry.Config{
			MaxAttempts:   o.maxAttempts,
			InitialDelay:  o.initialDelay,
			BackoffPolicy: retry.BackoffExponential,
		},
	}
}

// Initialize performs the MCP initialize handshake.
func (c *Client) Initialize(ctx context.Context) (*client.ServerInfo, error) {
	return c.mcp.Initialize(ctx)
}

// Close closes the underlying transport.
func (c *Client) Close() error {
	return c.mcp.Close()
}

// call invokes a tool with retry. An error result is returned as *ToolError
// after the first attempt.
func (c *Client) call(ctx context.Context, tool string, args map[string]any) (*client.ToolResult, error) {
	r := retry.New[*client.ToolResult](c.retryCfg)
	result, err := r.Do(ctx, func(ctx context.Context) (*client.ToolResult, error) {
		return c.mcp.CallTool(ctx, tool, args)
	})
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", tool, err)
	}
	if result.IsError {
		msg := ""
		if len(result.Content) > 0 {
			msg = result.Content[0].Text
		}
		toolErr := &ToolError{Tool: tool, Message: msg}
		toolErr.TaskID, _ = args["task_id"].(int)
		toolErr.SubtaskID, _ = args["subtask_id"].(string)
		return nil, toolErr
	}
	return result, nil
}

func unmarshalText[T any](result *client.ToolResult) (*T, error) {
	text, err := textResult(result)
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	return &v, nil
}

func textResult(result *client.ToolResult) (string, error) {
	if len(result.Content) == 0 {
		return "", ErrNoContent
	}
	return result.Content[0].Text, nil
}

// GetRoadmap reads the milestone://roadmap resource.
func (c *Client) GetRoadmap(ctx context.Context) (*RoadmapInfo, error) {
	rc, err := c.mcp.ReadResource(ctx, roadmapURI)
	if err != nil {
		return nil, fmt.Errorf("read roadmap resource: %w", err)
	}
	var info RoadmapInfo
	if err := json.Unmarshal([]byte(rc.Text), &info); err != nil {
		return nil, fmt.Errorf("unmarshal roadmap: %w", err)
	}
	return &info, nil
}

// Compatible returns nil when the server's schema major version matches.
func (c *Client) Compatible(ctx context.Context) error {
	info, err := c.GetRoadmap(ctx)
	if err != nil {
		return fmt.Errorf("check compatibility: %w", err)
	}
	serverMajor := majorVersion(info.SchemaVersion)
	if serverMajor != SupportedSchemaMajor {
		return fmt.Errorf("%w: server %s (major %s), client reads major %s",
			ErrIncompatible, info.SchemaVersion, serverMajor, SupportedSchemaMajor)
	}
	return nil
}

func majorVersion(v string) string {
	major, _, _ := strings.Cut(v, ".")
	return major
}

// Status returns progress and the grouped tasks. An empty priority lists every tier.
func (c *Client) Status(ctx context.Context, priority string) (*StatusResult, error) {
	var args map[string]any
	if priority != "" {
		args = map[string]any{"priority": priority}
	}
	res, err := c.call(ctx, "milestone_status", args)
	if err != nil {
		return nil, err
	}
	return unmarshalText[StatusResult](res)
}

// ToggleSubtask flips a subtask's completion and returns the server's summary line.
func (c *Client) ToggleSubtask(ctx context.Context, taskID int, subtaskID string) (string, error) {
	res, err := c.call(ctx, "milestone_toggle_subtask", map[string]any{"task_id": taskID, "subtask_id": subtaskID})
	if err != nil {
		return "", err
	}
	return textResult(res)
}

// ToggleTask expands or collapses a task.
func (c *Client) ToggleTask(ctx context.Context, taskID int) (string, error) {
	res, err := c.call(ctx, "milestone_toggle_task", map[string]any{"task_id": taskID})
	if err != nil {
		return "", err
	}
	return textResult(res)
}

// Sync asks the server to fetch and adopt the stored roadmap.
func (c *Client) Sync(ctx context.Context) (*SyncResult, error) {
	res, err := c.call(ctx, "milestone_sync", nil)
	if err != nil {
		return nil, err
	}
	return unmarshalText[SyncResult](res)
}

// Advise asks the server's advisor what to focus on next.
func (c *Client) Advise(ctx context.Context) (*Advice, error) {
	res, err := c.call(ctx, "milestone_advise", nil)
	if err != nil {
		return nil, err
	}
	return unmarshalText[Advice](res)
}

// Export returns the roadmap backup decoded into a snapshot.
func (c *Client) Export(ctx context.Context) (roadmap.Snapshot, error) {
	res, err := c.call(ctx, "milestone_export", nil)
	if err != nil {
		return nil, err
	}
	text, err := textResult(res)
	if err != nil {
		return nil, err
	}
	return roadmap.Decode("milestone_export", []byte(text))
}

// Import replaces the server's roadmap.
func (c *Client) Import(ctx context.Context, snap roadmap.Snapshot) (string, error) {
	data, err := roadmap.Encode(snap)
	if err != nil {
		return "", fmt.Errorf("encode roadmap: %w", err)
	}
	res, err := c.call(ctx, "milestone_import", map[string]any{"roadmap": string(data)})
	if err != nil {
		return "", err
	}
	return textResult(res)
}
