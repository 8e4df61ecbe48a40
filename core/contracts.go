package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// Transcriber turns raw audio bytes into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// GatewaySender relays a transcript to the downstream message gateway.
type GatewaySender interface {
	Send(ctx context.Context, text string) error
}

// CodeDeliverer is the bridge between the callback HTTP surface and the
// rendezvous coordinator. It reports whether a waiter consumed the
// delivery; "no waiter" and "already delivered" are ordinary false
// outcomes, never errors.
type CodeDeliverer interface {
	DeliverResult(state string, code string, raw map[string]any) bool
}

const (
	CallbackOutcomeDelivered = "delivered"
	CallbackOutcomeUnmatched = "unmatched"
)

// CallbackDelivery is the audit record for one inbound provider callback.
type CallbackDelivery struct {
	ID        string
	State     string
	Outcome   string
	HasCode   bool
	Payload   map[string]any
	CreatedAt time.Time
}

// DeliveryLedger persists callback outcomes for operator inspection.
type DeliveryLedger interface {
	Record(ctx context.Context, delivery CallbackDelivery) error
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

var _ MetricsRecorder = NopMetricsRecorder{}
