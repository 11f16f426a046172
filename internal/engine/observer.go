package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowcore/flowcore/internal/taskctx"
)

// LogObserver reports node and workflow lifecycle events to a structured
// zerolog logger, grounded in mbflow's infrastructure/monitoring
// console/log observer.
type LogObserver struct {
	Logger zerolog.Logger
}

func (o LogObserver) NodeStarted(workflowID, nodeName string) {
	o.Logger.Debug().Str("workflow_id", workflowID).Str("node", nodeName).Msg("node started")
}

func (o LogObserver) NodeSucceeded(workflowID, nodeName string, duration time.Duration) {
	o.Logger.Debug().Str("workflow_id", workflowID).Str("node", nodeName).Dur("duration", duration).Msg("node succeeded")
}

func (o LogObserver) NodeFailed(workflowID, nodeName string, err error) {
	o.Logger.Warn().Str("workflow_id", workflowID).Str("node", nodeName).Err(err).Msg("node failed")
}

func (o LogObserver) WorkflowCompleted(workflowID string, status taskctx.Status) {
	o.Logger.Info().Str("workflow_id", workflowID).Str("status", status.String()).Msg("workflow completed")
}

// TraceObserver opens one OpenTelemetry span per node execution, grounded
// in mbflow's infrastructure/monitoring/trace.go tracer wiring.
type TraceObserver struct {
	Tracer trace.Tracer

	mu    sync.Mutex
	spans map[string]map[string]trace.Span
}

// NewTraceObserver builds a TraceObserver using the named tracer from the
// global OpenTelemetry provider.
func NewTraceObserver(tracerName string) *TraceObserver {
	return &TraceObserver{
		Tracer: otel.Tracer(tracerName),
		spans:  map[string]map[string]trace.Span{},
	}
}

// node spans are not nested under the caller's execution context, since
// the engine may run nodes on goroutines outside any originating span's
// lifetime (parallel branches each get an independent snapshot).
func (o *TraceObserver) NodeStarted(workflowID, nodeName string) {
	_, span := o.Tracer.Start(context.Background(), "node."+nodeName,
		trace.WithAttributes(attribute.String("workflow_id", workflowID), attribute.String("node", nodeName)))
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.spans[workflowID] == nil {
		o.spans[workflowID] = map[string]trace.Span{}
	}
	o.spans[workflowID][nodeName] = span
}

func (o *TraceObserver) NodeSucceeded(workflowID, nodeName string, duration time.Duration) {
	if span, ok := o.spanFor(workflowID, nodeName); ok {
		span.SetAttributes(attribute.Int64("duration_ms", duration.Milliseconds()))
		span.SetStatus(codes.Ok, "")
		span.End()
	}
}

func (o *TraceObserver) NodeFailed(workflowID, nodeName string, err error) {
	if span, ok := o.spanFor(workflowID, nodeName); ok {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
	}
}

func (o *TraceObserver) WorkflowCompleted(workflowID string, status taskctx.Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.spans, workflowID)
}

func (o *TraceObserver) spanFor(workflowID, nodeName string) (trace.Span, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	byNode, ok := o.spans[workflowID]
	if !ok {
		return nil, false
	}
	span, ok := byNode[nodeName]
	return span, ok
}
