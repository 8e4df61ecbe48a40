package core

import (
	"context"

	glog "github.com/goliatone/go-logger/glog"
)

// App is the assembled runtime: resolved configuration plus the shared
// collaborators the HTTP surfaces and the upload pipeline consume.
type App struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorFactory    ErrorFactory
	transcriber     Transcriber
	gatewaySender   GatewaySender
	deliveryLedger  DeliveryLedger
}

// NewApp resolves configuration through the provider and options
// resolver (defaults < loaded < runtime) and wires defaults for every
// collaborator left unset.
func NewApp(runtime Config, options ...Option) (*App, error) {
	builder := defaultAppBuilder(runtime)
	for _, option := range options {
		if option != nil {
			option(&builder)
		}
	}

	provider, logger := glog.Resolve("audio-relay", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)

	defaults := DefaultConfig()
	loaded := defaults
	if builder.configProvider != nil {
		resolved, err := builder.configProvider.Load(context.Background(), defaults)
		if err != nil {
			return nil, err
		}
		loaded = resolved
	}

	config := loaded
	if builder.optionsResolver != nil {
		resolved, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
		if err != nil {
			return nil, err
		}
		config = resolved
	}

	metrics := builder.metricsRecorder
	if metrics == nil {
		metrics = NopMetricsRecorder{}
	}

	return &App{
		config:          config,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: metrics,
		errorFactory:    builder.errorFactory,
		transcriber:     builder.transcriber,
		gatewaySender:   builder.gatewaySender,
		deliveryLedger:  builder.deliveryLedger,
	}, nil
}

func (a *App) Config() Config {
	if a == nil {
		return Config{}
	}
	return a.config
}

func (a *App) Logger() Logger {
	if a == nil || a.logger == nil {
		return glog.Nop()
	}
	return a.logger
}

// GetLogger returns a named logger from the provider, falling back to
// the app logger.
func (a *App) GetLogger(name string) Logger {
	if a == nil {
		return glog.Nop()
	}
	if a.loggerProvider != nil {
		if logger := a.loggerProvider.GetLogger(name); logger != nil {
			return logger
		}
	}
	return a.Logger()
}

func (a *App) Metrics() MetricsRecorder {
	if a == nil || a.metricsRecorder == nil {
		return NopMetricsRecorder{}
	}
	return a.metricsRecorder
}

func (a *App) Transcriber() Transcriber {
	if a == nil {
		return nil
	}
	return a.transcriber
}

func (a *App) GatewaySender() GatewaySender {
	if a == nil {
		return nil
	}
	return a.gatewaySender
}

func (a *App) DeliveryLedger() DeliveryLedger {
	if a == nil {
		return nil
	}
	return a.deliveryLedger
}
