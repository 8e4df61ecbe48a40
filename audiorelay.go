// Package audiorelay assembles the audio-relay service: an upload
// surface that transcribes audio and forwards it to a message gateway,
// plus a local rendezvous coordinator for OAuth callback codes.
package audiorelay

import "github.com/goliatone/go-audio-relay/core"

type Config = core.Config

type Option = core.Option

type App = core.App

type Transcriber = core.Transcriber
type GatewaySender = core.GatewaySender
type CodeDeliverer = core.CodeDeliverer
type DeliveryLedger = core.DeliveryLedger
type CallbackDelivery = core.CallbackDelivery
type MetricsRecorder = core.MetricsRecorder

var (
	WithLogger          = core.WithLogger
	WithLoggerProvider  = core.WithLoggerProvider
	WithMetricsRecorder = core.WithMetricsRecorder
	WithErrorFactory    = core.WithErrorFactory
	WithConfigProvider  = core.WithConfigProvider
	WithOptionsResolver = core.WithOptionsResolver
	WithTranscriber     = core.WithTranscriber
	WithGatewaySender   = core.WithGatewaySender
	WithDeliveryLedger  = core.WithDeliveryLedger
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// New resolves configuration and returns the assembled app.
func New(runtime Config, options ...Option) (*App, error) {
	return core.NewApp(runtime, options...)
}
