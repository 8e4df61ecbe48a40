package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	RelayErrorBadInput        = "RELAY_BAD_INPUT"
	RelayErrorUnauthorized    = "RELAY_UNAUTHORIZED"
	RelayErrorNotFound        = "RELAY_NOT_FOUND"
	RelayErrorPayloadTooLarge = "RELAY_PAYLOAD_TOO_LARGE"
	RelayErrorProtocol        = "RELAY_PROTOCOL_ERROR"
	RelayErrorConnection      = "RELAY_CONNECTION_ERROR"
	RelayErrorTimeout         = "RELAY_TIMEOUT"
	RelayErrorUnexpectedReply = "RELAY_UNEXPECTED_REPLY"
	RelayErrorUpstreamFailed  = "RELAY_UPSTREAM_FAILED"
	RelayErrorInternal        = "RELAY_INTERNAL_ERROR"
)

// HTTPStatus resolves the response status for an error, falling back to
// a category mapping when the error carries no explicit code.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		if richErr.Code != 0 {
			return richErr.Code
		}
		return statusForCategory(richErr.Category)
	}
	return http.StatusInternalServerError
}

// TextCode extracts the machine-readable code from an error envelope.
func TextCode(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return strings.TrimSpace(richErr.TextCode)
	}
	return ""
}

func statusForCategory(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
