// Package llmtest provides a scripted Client for tests.
package llmtest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"bidforge/internal/llm"
)

// ErrUnavailable simulates a model outage.
var ErrUnavailable = errors.New("model endpoint unavailable")

// Rule maps a prompt substring to a canned response or error.
type Rule struct {
	Match   string
	Content string
	Err     error
}

// Client replays scripted responses. The zero value errors on every call.
// Safe for concurrent use.
type Client struct {
	mu    sync.Mutex
	rules []Rule
	calls []llm.CompletionRequest
}

// New builds a scripted client from rules, checked in order.
func New(rules ...Rule) *Client {
	return &Client{rules: rules}
}

// Respond appends a rule matching prompts containing match.
func (c *Client) Respond(match, content string) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rules = append(c.rules, Rule{Match: match, Content: content})
	return c
}

// Fail appends a rule that errors for prompts containing match.
func (c *Client) Fail(match string, err error) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		err = ErrUnavailable
	}
	c.rules = append(c.rules, Rule{Match: match, Err: err})
	return c
}

func (c *Client) Complete(_ context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, req)
	for _, r := range c.rules {
		if r.Match == "" || strings.Contains(req.Prompt, r.Match) {
			if r.Err != nil {
				return llm.CompletionResponse{}, r.Err
			}
			return llm.CompletionResponse{Content: r.Content, Model: "scripted"}, nil
		}
	}
	return llm.CompletionResponse{}, ErrUnavailable
}

// Calls returns a copy of every request seen so far.
func (c *Client) Calls() []llm.CompletionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]llm.CompletionRequest, len(c.calls))
	copy(out, c.calls)
	return out
}

var _ llm.Client = (*Client)(nil)
