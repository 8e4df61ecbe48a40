// Package transcribe sends audio to the Groq transcription API.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-audio-relay/core"
)

const (
	defaultEndpoint      = "https://api.groq.com/openai/v1/audio/transcriptions"
	maxResponseBodyBytes = 1 << 20
)

// HTTPDoer is the client seam, satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// GroqTranscriber calls the Groq audio transcription endpoint with a
// multipart upload and returns the transcript text.
type GroqTranscriber struct {
	endpoint string
	apiKey   string
	model    string
	client   HTTPDoer
	logger   core.Logger
}

func NewGroqTranscriber(cfg core.TranscriberConfig, logger core.Logger) *GroqTranscriber {
	return &GroqTranscriber{
		endpoint: defaultEndpoint,
		apiKey:   strings.TrimSpace(cfg.APIKey),
		model:    strings.TrimSpace(cfg.Model),
		client:   &http.Client{Timeout: cfg.Timeout},
		logger:   glog.Ensure(logger),
	}
}

// WithEndpoint overrides the API endpoint, used by tests and proxies.
func (t *GroqTranscriber) WithEndpoint(endpoint string) *GroqTranscriber {
	if t != nil && strings.TrimSpace(endpoint) != "" {
		t.endpoint = strings.TrimSpace(endpoint)
	}
	return t
}

// WithHTTPClient swaps the underlying HTTP client.
func (t *GroqTranscriber) WithHTTPClient(client HTTPDoer) *GroqTranscriber {
	if t != nil && client != nil {
		t.client = client
	}
	return t
}

func (t *GroqTranscriber) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if t == nil {
		return "", transcribeError("transcriber is nil")
	}
	if t.apiKey == "" {
		return "", transcribeError("api key is not configured")
	}
	if len(audio) == 0 {
		return "", transcribeError("audio payload is empty")
	}

	body, contentType, err := t.encodeRequest(audio, filename)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, body)
	if err != nil {
		return "", transcribeWrapError(err, "building request failed")
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	res, err := t.client.Do(req)
	if err != nil {
		return "", transcribeWrapError(err, "request failed")
	}
	defer res.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBodyBytes))
	if err != nil {
		return "", transcribeWrapError(err, "reading response failed")
	}
	if res.StatusCode != http.StatusOK {
		t.logger.Error("transcription request rejected", "status", res.StatusCode, "body", truncate(payload, 512))
		return "", upstreamStatusError(res.StatusCode)
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", transcribeWrapError(err, "decoding response failed")
	}
	text := strings.TrimSpace(parsed.Text)
	if text == "" {
		return "", transcribeError("response contained no transcript text")
	}
	return text, nil
}

func (t *GroqTranscriber) encodeRequest(audio []byte, filename string) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", transcribeWrapError(err, "encoding multipart body failed")
	}
	if _, err := part.Write(audio); err != nil {
		return nil, "", transcribeWrapError(err, "encoding multipart body failed")
	}
	if err := writer.WriteField("model", t.model); err != nil {
		return nil, "", transcribeWrapError(err, "encoding multipart body failed")
	}
	if err := writer.Close(); err != nil {
		return nil, "", transcribeWrapError(err, "encoding multipart body failed")
	}
	return buf, writer.FormDataContentType(), nil
}

func transcribeError(message string) error {
	return goerrors.New(fmt.Sprintf("transcribe: %s", message), goerrors.CategoryOperation).
		WithTextCode(core.RelayErrorUpstreamFailed)
}

func transcribeWrapError(err error, message string) error {
	return goerrors.Wrap(err, goerrors.CategoryExternal, fmt.Sprintf("transcribe: %s", message)).
		WithTextCode(core.RelayErrorUpstreamFailed)
}

func upstreamStatusError(status int) error {
	return goerrors.New(fmt.Sprintf("transcribe: upstream answered %d", status), goerrors.CategoryExternal).
		WithTextCode(core.RelayErrorUpstreamFailed).
		WithMetadata(map[string]any{"status": status})
}

func truncate(payload []byte, limit int) string {
	if len(payload) <= limit {
		return string(payload)
	}
	return string(payload[:limit])
}

var _ core.Transcriber = (*GroqTranscriber)(nil)
