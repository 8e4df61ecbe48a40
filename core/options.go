package core

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type appBuilder struct {
	runtimeConfig   Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorFactory    ErrorFactory
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	transcriber     Transcriber
	gatewaySender   GatewaySender
	deliveryLedger  DeliveryLedger
}

type Option func(*appBuilder)

func WithLogger(logger Logger) Option {
	return func(b *appBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *appBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *appBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *appBuilder) {
		b.errorFactory = factory
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *appBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *appBuilder) {
		b.optionsResolver = resolver
	}
}

func WithTranscriber(transcriber Transcriber) Option {
	return func(b *appBuilder) {
		b.transcriber = transcriber
	}
}

func WithGatewaySender(sender GatewaySender) Option {
	return func(b *appBuilder) {
		b.gatewaySender = sender
	}
}

func WithDeliveryLedger(ledger DeliveryLedger) Option {
	return func(b *appBuilder) {
		b.deliveryLedger = ledger
	}
}

func defaultAppBuilder(runtime Config) appBuilder {
	loggerProvider, logger := glog.Resolve("audio-relay", nil, nil)
	return appBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
	}
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	server := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Server.Host) != "" {
		server["host"] = cfg.Server.Host
	}
	if includeZero || cfg.Server.Port != 0 {
		server["port"] = cfg.Server.Port
	}
	if len(server) > 0 {
		layer["server"] = server
	}
	auth := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Auth.PathUUID) != "" {
		auth["path_uuid"] = cfg.Auth.PathUUID
	}
	if includeZero || strings.TrimSpace(cfg.Auth.Token) != "" {
		auth["token"] = cfg.Auth.Token
	}
	if includeZero || cfg.Auth.GhostMode {
		auth["ghost_mode"] = cfg.Auth.GhostMode
	}
	if len(auth) > 0 {
		layer["auth"] = auth
	}
	upload := map[string]any{}
	if includeZero || cfg.Upload.MaxSizeMB != 0 {
		upload["max_size_mb"] = cfg.Upload.MaxSizeMB
	}
	if len(upload) > 0 {
		layer["upload"] = upload
	}
	transcriber := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Transcriber.APIKey) != "" {
		transcriber["api_key"] = cfg.Transcriber.APIKey
	}
	if includeZero || strings.TrimSpace(cfg.Transcriber.Model) != "" {
		transcriber["model"] = cfg.Transcriber.Model
	}
	if includeZero || cfg.Transcriber.Timeout != 0 {
		transcriber["timeout"] = cfg.Transcriber.Timeout
	}
	if len(transcriber) > 0 {
		layer["transcriber"] = transcriber
	}
	gateway := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Gateway.URL) != "" {
		gateway["url"] = cfg.Gateway.URL
	}
	if includeZero || strings.TrimSpace(cfg.Gateway.Token) != "" {
		gateway["token"] = cfg.Gateway.Token
	}
	if includeZero || strings.TrimSpace(cfg.Gateway.SessionKey) != "" {
		gateway["session_key"] = cfg.Gateway.SessionKey
	}
	if includeZero || cfg.Gateway.Timeout != 0 {
		gateway["timeout"] = cfg.Gateway.Timeout
	}
	if includeZero || cfg.Gateway.RetryAttempts != 0 {
		gateway["retry_attempts"] = cfg.Gateway.RetryAttempts
	}
	if len(gateway) > 0 {
		layer["gateway"] = gateway
	}
	relay := map[string]any{}
	if includeZero || cfg.Relay.Enabled {
		relay["enabled"] = cfg.Relay.Enabled
	}
	if includeZero || strings.TrimSpace(cfg.Relay.CallbackPath) != "" {
		relay["callback_path"] = cfg.Relay.CallbackPath
	}
	if includeZero || len(cfg.Relay.CodeKeys) > 0 {
		relay["code_keys"] = append([]string(nil), cfg.Relay.CodeKeys...)
	}
	if includeZero || strings.TrimSpace(cfg.Relay.SocketPath) != "" {
		relay["socket_path"] = cfg.Relay.SocketPath
	}
	if includeZero || cfg.Relay.UseTCP {
		relay["use_tcp"] = cfg.Relay.UseTCP
	}
	if includeZero || cfg.Relay.TCPPort != 0 {
		relay["tcp_port"] = cfg.Relay.TCPPort
	}
	if includeZero || strings.TrimSpace(cfg.Relay.TCPHost) != "" {
		relay["tcp_host"] = cfg.Relay.TCPHost
	}
	if includeZero || cfg.Relay.DefaultTimeout != 0 {
		relay["default_timeout"] = cfg.Relay.DefaultTimeout
	}
	if includeZero || cfg.Relay.LogUnmatched {
		relay["log_unmatched"] = cfg.Relay.LogUnmatched
	}
	if len(relay) > 0 {
		layer["relay"] = relay
	}
	ledger := map[string]any{}
	if includeZero || cfg.Ledger.Enabled {
		ledger["enabled"] = cfg.Ledger.Enabled
	}
	if includeZero || strings.TrimSpace(cfg.Ledger.Driver) != "" {
		ledger["driver"] = cfg.Ledger.Driver
	}
	if includeZero || strings.TrimSpace(cfg.Ledger.DSN) != "" {
		ledger["dsn"] = cfg.Ledger.DSN
	}
	if includeZero || cfg.Ledger.Retention != 0 {
		ledger["retention"] = cfg.Ledger.Retention
	}
	if len(ledger) > 0 {
		layer["ledger"] = ledger
	}
	return layer
}

// EnvRawConfigLoader maps environment variables into the nested raw
// config shape. Double underscores delimit sections:
// RELAY_GATEWAY__RETRY_ATTEMPTS=5 -> {"gateway":{"retry_attempts":5}}.
type EnvRawConfigLoader struct {
	Prefix  string
	Environ func() []string
}

func (l EnvRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	prefix := strings.TrimSpace(l.Prefix)
	if prefix == "" {
		prefix = "RELAY_"
	}
	environ := l.Environ
	if environ == nil {
		environ = os.Environ
	}
	out := map[string]any{}
	for _, entry := range environ() {
		key, value, found := strings.Cut(entry, "=")
		if !found || !strings.HasPrefix(key, prefix) {
			continue
		}
		path := strings.ToLower(strings.TrimPrefix(key, prefix))
		segments := strings.Split(path, "__")
		node := out
		for i, segment := range segments {
			segment = strings.TrimSpace(segment)
			if segment == "" {
				break
			}
			if i == len(segments)-1 {
				node[segment] = coerceEnvValue(value)
				break
			}
			child, ok := node[segment].(map[string]any)
			if !ok {
				child = map[string]any{}
				node[segment] = child
			}
			node = child
		}
	}
	return out, nil
}

func coerceEnvValue(raw string) any {
	value := strings.TrimSpace(raw)
	switch strings.ToLower(value) {
	case "true", "yes", "on":
		return true
	case "false", "no", "off":
		return false
	}
	if parsed, err := strconv.Atoi(value); err == nil {
		return parsed
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if strings.Contains(value, ",") {
		parts := strings.Split(value, ",")
		list := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				list = append(list, trimmed)
			}
		}
		return list
	}
	return value
}
