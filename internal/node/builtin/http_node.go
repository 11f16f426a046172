// Package builtin ships ready-made node implementations. HTTPRequestNode
// adapts mbflow's internal/node/builtin.HTTPRequestNode (the Execute/
// core.NodeInput shape) onto the new AsyncNode contract: it fills
// {node.name} placeholders in its URL and headers from upstream node
// outputs, writes the decoded JSON response under its own node name, and
// records the HTTP status in TaskContext metadata.
package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/flowcore/flowcore/internal/errs"
	"github.com/flowcore/flowcore/internal/taskctx"
)

// HTTPRequestConfig configures an HTTPRequestNode.
type HTTPRequestConfig struct {
	Method       string
	URL          string
	Headers      map[string]string
	Timeout      time.Duration
	BodyFromNode string // if set, read the request body from this upstream node's output
	FailOnStatus func(code int) bool
}

// HTTPClient is a minimal HTTP client abstraction for testing/mocking.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPRequestNode performs an HTTP request and stores the decoded JSON
// response (or raw bytes if decoding fails) under its own node name.
type HTTPRequestNode struct {
	name   string
	cfg    HTTPRequestConfig
	client HTTPClient
}

// NewHTTPRequestNode constructs an HTTPRequestNode named name.
func NewHTTPRequestNode(name string, cfg HTTPRequestConfig, client HTTPClient) *HTTPRequestNode {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTTPRequestNode{name: name, cfg: cfg, client: client}
}

func (n *HTTPRequestNode) Name() string        { return n.name }
func (n *HTTPRequestNode) Description() string { return "performs an HTTP " + n.cfg.Method + " request" }

// ProcessAsync implements node.AsyncNode.
func (n *HTTPRequestNode) ProcessAsync(ctx context.Context, tc *taskctx.TaskContext) (*taskctx.TaskContext, error) {
	if n.cfg.Method == "" || n.cfg.URL == "" {
		return tc, errs.Configuration("http node: method and url must be set")
	}

	var body io.Reader
	if n.cfg.BodyFromNode != "" {
		if v, ok := tc.GetNodeRaw(n.cfg.BodyFromNode); ok {
			buf := new(bytes.Buffer)
			if err := json.NewEncoder(buf).Encode(v); err != nil {
				return tc, errs.Serialization("encoding http request body", err)
			}
			body = buf
		}
	}

	url := expandPlaceholders(n.cfg.URL, tc)
	req, err := http.NewRequestWithContext(ctx, n.cfg.Method, url, body)
	if err != nil {
		return tc, errs.Internal(err)
	}
	for k, v := range n.cfg.Headers {
		req.Header.Set(k, expandPlaceholders(v, tc))
	}
	if req.Header.Get("Content-Type") == "" && body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return tc, errs.ExternalService(0, "http request failed: "+err.Error())
	}
	defer resp.Body.Close()

	if n.cfg.FailOnStatus != nil && n.cfg.FailOnStatus(resp.StatusCode) {
		return tc, errs.ExternalService(resp.StatusCode, "unexpected status "+resp.Status)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return tc, errs.ExternalService(resp.StatusCode, "reading response body: "+err.Error())
	}

	var decoded any
	if len(raw) > 0 && json.Unmarshal(raw, &decoded) == nil {
		if err := tc.SetNode(n.name, decoded); err != nil {
			return tc, err
		}
	} else if err := tc.SetNode(n.name, string(raw)); err != nil {
		return tc, err
	}

	_ = tc.SetMetadata(n.name+".http_status", strconv.Itoa(resp.StatusCode))
	return tc, nil
}

// expandPlaceholders replaces {node.name} with a node's output rendered as
// a string. Metadata placeholders such as {meta.key} are left unchanged.
func expandPlaceholders(s string, tc *taskctx.TaskContext) string {
	if s == "" {
		return s
	}
	out := s
	for _, name := range tc.NodeNames() {
		ph := "{node." + name + "}"
		if strings.Contains(out, ph) {
			if v, ok := tc.GetNodeRaw(name); ok {
				out = strings.ReplaceAll(out, ph, toDisplayString(v))
			}
		}
	}
	return out
}

func toDisplayString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}
