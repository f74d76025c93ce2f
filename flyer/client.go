// Package flyer is a client for the ad-task provider. The provider hands out
// promotional tasks (channels to join, bots to open) and verifies their
// completion by an opaque signature.
package flyer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"megapack-bot/metrics"
)

// taskPageSize is the fixed number of tasks requested per gate evaluation.
const taskPageSize = 4

// Task is one provider-supplied action. Fetched fresh on every evaluation,
// never persisted.
type Task struct {
	Signature string `json:"signature"`
	Link      string `json:"link"`
	Title     string `json:"title"`
	Name      string `json:"name"`
	// Status may arrive as a string ("done") or a bool, depending on the
	// provider's mood.
	Status any `json:"status"`
}

// DisplayName returns the human-readable label for keyboards.
func (t Task) DisplayName() string {
	if t.Title != "" {
		return t.Title
	}
	if t.Name != "" {
		return t.Name
	}
	return "Sponsor"
}

// Summary is the legacy aggregate completion report, still used by /status.
type Summary struct {
	Status    string // "completed", "incomplete", "no_tasks" or "error"
	Completed int
	Total     int
}

type Client struct {
	key           string
	baseURL       string
	waitingIsDone bool
	httpClient    *http.Client
}

func NewClient(key, baseURL string, waitingIsDone bool) *Client {
	return &Client{
		key:           key,
		baseURL:       strings.TrimRight(baseURL, "/"),
		waitingIsDone: waitingIsDone,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type fetchTasksRequest struct {
	Key          string `json:"key"`
	UserID       int64  `json:"user_id"`
	LanguageCode string `json:"language_code,omitempty"`
	Limit        int    `json:"limit"`
}

type fetchTasksResponse struct {
	Error  string `json:"error"`
	Result []Task `json:"result"`
}

// FetchTasks asks the provider for up to taskPageSize tasks for the user.
// Any provider failure is logged and reported as "no tasks" so the caller
// can fall through to channel gating.
func (c *Client) FetchTasks(ctx context.Context, userID int64, languageCode string) []Task {
	req := fetchTasksRequest{
		Key:          c.key,
		UserID:       userID,
		LanguageCode: languageCode,
		Limit:        taskPageSize,
	}

	var resp fetchTasksResponse
	if err := c.post(ctx, "/get_tasks", req, &resp); err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("task fetch failed")
		return nil
	}

	if resp.Error != "" {
		log.Debug().Str("provider_error", resp.Error).Int64("user_id", userID).Msg("provider returned no tasks")
		return nil
	}

	return resp.Result
}

type checkTaskRequest struct {
	Key       string `json:"key"`
	Signature string `json:"signature"`
}

type checkTaskResponse struct {
	Error  string `json:"error"`
	Result any    `json:"result"`
}

// IsTaskComplete reports whether a single task is done. A task whose status
// already says so is complete without a network call; a task without a
// signature can never be verified and counts as incomplete. Check failures
// count as incomplete, never as errors.
func (c *Client) IsTaskComplete(ctx context.Context, task Task) bool {
	if statusKnownDone(task.Status) {
		metrics.TaskChecks.WithLabelValues("cached_done").Inc()
		return true
	}

	if task.Signature == "" {
		metrics.TaskChecks.WithLabelValues("no_signature").Inc()
		return false
	}

	req := checkTaskRequest{
		Key:       c.key,
		Signature: task.Signature,
	}

	var resp checkTaskResponse
	if err := c.post(ctx, "/check_task", req, &resp); err != nil {
		log.Warn().Err(err).Str("signature", task.Signature).Msg("task check failed")
		metrics.TaskChecks.WithLabelValues("error").Inc()
		return false
	}

	if resp.Error != "" {
		metrics.TaskChecks.WithLabelValues("error").Inc()
		return false
	}

	done := c.resultDone(resp.Result)
	if done {
		metrics.TaskChecks.WithLabelValues("done").Inc()
	} else {
		metrics.TaskChecks.WithLabelValues("pending").Inc()
	}
	return done
}

// AllComplete reports whether every task checks out, stopping at the first
// incomplete one.
func (c *Client) AllComplete(ctx context.Context, tasks []Task) bool {
	for _, task := range tasks {
		if !c.IsTaskComplete(ctx, task) {
			return false
		}
	}
	return true
}

type summaryRequest struct {
	Key    string `json:"key"`
	UserID int64  `json:"user_id"`
}

type summaryResponse struct {
	Error     string `json:"error"`
	Completed int    `json:"completed_tasks"`
	Total     int    `json:"total_tasks"`
}

// Summary is the aggregate completion endpoint kept from the earlier bot
// generation; /status still reports through it.
func (c *Client) Summary(ctx context.Context, userID int64) Summary {
	req := summaryRequest{
		Key:    c.key,
		UserID: userID,
	}

	var resp summaryResponse
	if err := c.post(ctx, "/get_completed_tasks", req, &resp); err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("task summary failed")
		return Summary{Status: "error"}
	}

	if resp.Error != "" {
		if strings.Contains(strings.ToLower(resp.Error), "no tasks") {
			return Summary{Status: "no_tasks"}
		}
		return Summary{Status: "error"}
	}

	if resp.Total == 0 {
		return Summary{Status: "no_tasks"}
	}

	if resp.Completed >= resp.Total {
		return Summary{Status: "completed", Completed: resp.Completed, Total: resp.Total}
	}

	return Summary{Status: "incomplete", Completed: resp.Completed, Total: resp.Total}
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("call %s: unexpected status %d", path, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}

	return nil
}

// statusKnownDone interprets a task's pre-supplied status field.
func statusKnownDone(status any) bool {
	switch v := status.(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(v) {
		case "done", "completed", "complete":
			return true
		}
	}
	return false
}

// resultDone interprets the provider's verification result. "waiting" counts
// as done when the leniency flag is on.
func (c *Client) resultDone(result any) bool {
	switch v := result.(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(v) {
		case "done", "completed":
			return true
		case "waiting":
			return c.waitingIsDone
		}
	}
	return false
}
