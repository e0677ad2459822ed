// Package observability provides metrics, tracing, and logging utilities.
package observability

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys
const (
	attrMethod   = "method"
	attrPath     = "path"
	attrStatus   = "status"
	attrPipeline = "pipeline"
	attrJob      = "job"
	attrStepType = "stepType"
	attrResult   = "result"
	attrTrigger  = "trigger"
)

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

func pathAttr(path string) attribute.KeyValue {
	// Normalize paths with IDs to reduce cardinality
	// /v1/runs/abc123 -> /v1/runs/{runId}
	return attribute.String(attrPath, normalizePath(path))
}

func statusAttr(code int) attribute.KeyValue {
	// Group status codes to reduce cardinality
	// 200-299 -> 2xx, 400-499 -> 4xx, 500-599 -> 5xx
	group := fmt.Sprintf("%dxx", code/100)
	return attribute.String(attrStatus, group)
}

func pipelineAttr(name string) attribute.KeyValue {
	return attribute.String(attrPipeline, name)
}

func jobAttr(id string) attribute.KeyValue {
	return attribute.String(attrJob, id)
}

func stepTypeAttr(stepType string) attribute.KeyValue {
	return attribute.String(attrStepType, stepType)
}

func resultAttr(result string) attribute.KeyValue {
	return attribute.String(attrResult, result)
}

func triggerAttr(trigger string) attribute.KeyValue {
	return attribute.String(attrTrigger, trigger)
}

// normalizePath replaces dynamic path segments with placeholders.
func normalizePath(path string) string {
	if rest, ok := strings.CutPrefix(path, "/v1/runs/"); ok && rest != "" {
		return "/v1/runs/{runId}"
	}
	if rest, ok := strings.CutPrefix(path, "/v1/pipelines/"); ok && rest != "" {
		return "/v1/pipelines/{name}"
	}
	return path
}
