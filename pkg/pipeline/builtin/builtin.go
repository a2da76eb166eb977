// Package builtin ships the generic pipelines every deployment gets:
// an echo pipeline for smoke testing and an outbound HTTP request
// pipeline for calling external services from schedules.
package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/autoflow-hq/core/pkg/pipeline"
)

// Register adds the built-in pipelines to the registry.
func Register(registry *pipeline.Registry) error {
	for _, p := range []pipeline.Pipeline{
		&EchoPipeline{},
		NewHTTPRequestPipeline(30 * time.Second),
	} {
		if err := registry.Register(p); err != nil {
			return err
		}
	}
	return nil
}

// EchoPipeline returns its input unchanged. Useful for verifying
// trigger surfaces and schedule plumbing end to end.
type EchoPipeline struct{}

func (p *EchoPipeline) Descriptor() pipeline.Descriptor {
	return pipeline.Descriptor{
		Name:        "echo",
		Description: "Returns its input unchanged, tagged with the trigger source",
		Tags:        []string{"utility", "diagnostics"},
		Area:        "system",
	}
}

func (p *EchoPipeline) Execute(ctx context.Context, input map[string]any, ec pipeline.ExecutionContext) pipeline.Result {
	output := map[string]any{
		"input":  input,
		"source": string(ec.Source),
	}
	return pipeline.Ok(output)
}

// HTTPRequestPipeline performs a single outbound HTTP request.
type HTTPRequestPipeline struct {
	client *http.Client
}

func NewHTTPRequestPipeline(timeout time.Duration) *HTTPRequestPipeline {
	return &HTTPRequestPipeline{
		client: &http.Client{Timeout: timeout},
	}
}

func (p *HTTPRequestPipeline) Descriptor() pipeline.Descriptor {
	return pipeline.Descriptor{
		Name:        "http_request",
		Description: "Performs an HTTP request against an external URL and captures the response",
		Tags:        []string{"utility", "http"},
		Area:        "system",
		InputSchema: pipeline.ObjectSchema(map[string]*openapi3.Schema{
			"url":     openapi3.NewStringSchema(),
			"method":  openapi3.NewStringSchema(),
			"headers": openapi3.NewObjectSchema(),
			"body":    openapi3.NewObjectSchema(),
		}, "url"),
	}
}

func (p *HTTPRequestPipeline) Execute(ctx context.Context, input map[string]any, ec pipeline.ExecutionContext) pipeline.Result {
	url, _ := input["url"].(string)
	if url == "" {
		return pipeline.Fail("url is required")
	}

	method := http.MethodGet
	if m, ok := input["method"].(string); ok && m != "" {
		method = strings.ToUpper(m)
	}

	var body io.Reader
	if raw, ok := input["body"]; ok && raw != nil {
		encoded, err := json.Marshal(raw)
		if err != nil {
			return pipeline.Failf("failed to encode request body: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return pipeline.Failf("failed to build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if headers, ok := input["headers"].(map[string]any); ok {
		for key, value := range headers {
			if v, ok := value.(string); ok {
				req.Header.Set(key, v)
			}
		}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return pipeline.Failf("request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return pipeline.Failf("failed to read response: %v", err)
	}

	output := map[string]any{
		"status_code": resp.StatusCode,
		"body":        string(respBody),
	}
	if resp.StatusCode >= 400 {
		result := pipeline.Fail(fmt.Sprintf("upstream returned %d", resp.StatusCode))
		result.Output = output
		return result
	}
	return pipeline.Ok(output)
}
