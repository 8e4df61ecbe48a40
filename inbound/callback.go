package inbound

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"

	"github.com/goliatone/go-audio-relay/core"
	"github.com/goliatone/go-audio-relay/relay"
)

const maxCallbackBodyBytes int64 = 1 << 20

// CallbackHandler receives provider redirects, extracts the
// authorization code and hands the result to the coordinator.
type CallbackHandler struct {
	deliverer core.CodeDeliverer
	codeKeys  []string
	ledger    core.DeliveryLedger
	logger    core.Logger
}

func NewCallbackHandler(
	deliverer core.CodeDeliverer,
	codeKeys []string,
	logger core.Logger,
) *CallbackHandler {
	return &CallbackHandler{
		deliverer: deliverer,
		codeKeys:  append([]string(nil), codeKeys...),
		logger:    glog.Ensure(logger),
	}
}

// WithLedger enables best-effort callback auditing. Ledger failures are
// logged and never affect the browser-facing outcome.
func (h *CallbackHandler) WithLedger(ledger core.DeliveryLedger) *CallbackHandler {
	if h != nil {
		h.ledger = ledger
	}
	return h
}

func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.deliverer == nil {
		http.Error(w, "callback coordinator not initialized", http.StatusInternalServerError)
		return
	}

	var payload map[string]any
	switch r.Method {
	case http.MethodGet:
		payload = queryPayload(r.URL.Query())
	case http.MethodPost:
		parsed, err := h.bodyPayload(r)
		if err != nil {
			h.logger.Error("callback body parsing failed", "error", err)
			renderPage(w, failurePage, http.StatusBadRequest)
			return
		}
		payload = parsed
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	state := stateFromPayload(payload)
	code, ok := relay.ExtractCode(payload, h.codeKeys)
	var raw map[string]any
	if !ok {
		raw = payload
	}

	delivered := h.deliverer.DeliverResult(state, code, raw)
	h.record(r, state, delivered, ok, payload)

	if delivered {
		renderPage(w, successPage, http.StatusOK)
		return
	}
	renderPage(w, failurePage, http.StatusNotFound)
}

func (h *CallbackHandler) record(r *http.Request, state string, delivered bool, hasCode bool, payload map[string]any) {
	if h.ledger == nil {
		return
	}
	outcome := core.CallbackOutcomeUnmatched
	if delivered {
		outcome = core.CallbackOutcomeDelivered
	}
	err := h.ledger.Record(r.Context(), core.CallbackDelivery{
		ID:        uuid.NewString(),
		State:     state,
		Outcome:   outcome,
		HasCode:   hasCode,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		h.logger.Error("callback ledger record failed", "state", state, "error", err)
	}
}

func (h *CallbackHandler) bodyPayload(r *http.Request) (map[string]any, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBodyBytes))
	if err != nil {
		return nil, err
	}
	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch contentType {
	case "application/json":
		return jsonPayload(body)
	case "application/x-www-form-urlencoded":
		return formPayload(body)
	default:
		// Providers are sloppy about content types on redirect POSTs:
		// try JSON first, fall back to form encoding.
		if payload, err := jsonPayload(body); err == nil {
			return payload, nil
		}
		return formPayload(body)
	}
}

func jsonPayload(body []byte) (map[string]any, error) {
	payload := map[string]any{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func formPayload(body []byte) (map[string]any, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, err
	}
	return queryPayload(values), nil
}

func queryPayload(values url.Values) map[string]any {
	payload := make(map[string]any, len(values))
	for key, list := range values {
		switch len(list) {
		case 0:
		case 1:
			payload[key] = list[0]
		default:
			entries := make([]any, len(list))
			for i, entry := range list {
				entries[i] = entry
			}
			payload[key] = entries
		}
	}
	return payload
}

func stateFromPayload(payload map[string]any) string {
	switch value := payload["state"].(type) {
	case string:
		return value
	case []any:
		if len(value) > 0 {
			if first, ok := value[0].(string); ok {
				return first
			}
		}
	case []string:
		if len(value) > 0 {
			return value[0]
		}
	}
	return ""
}

func renderPage(w http.ResponseWriter, page string, status int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, page)
}

var _ http.Handler = (*CallbackHandler)(nil)
