package relay

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-audio-relay/core"
)

func relayError(
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

func relayWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	if source == nil {
		return relayError(message, category, code, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

func protocolError(source error, message string) error {
	return relayWrapError(
		source,
		goerrors.CategoryBadInput,
		message,
		http.StatusBadRequest,
		core.RelayErrorProtocol,
		nil,
	)
}

func connectionError(source error, message string, metadata map[string]any) error {
	return relayWrapError(
		source,
		goerrors.CategoryExternal,
		message,
		http.StatusBadGateway,
		core.RelayErrorConnection,
		metadata,
	)
}

func timeoutError(message string, metadata map[string]any) error {
	return relayError(
		message,
		goerrors.CategoryOperation,
		http.StatusGatewayTimeout,
		core.RelayErrorTimeout,
		metadata,
	)
}

func unexpectedReplyError(message string, metadata map[string]any) error {
	return relayError(
		message,
		goerrors.CategoryOperation,
		http.StatusBadGateway,
		core.RelayErrorUnexpectedReply,
		metadata,
	)
}

// IsProtocolError reports whether err is a malformed wire message failure.
func IsProtocolError(err error) bool {
	return core.TextCode(err) == core.RelayErrorProtocol
}

// IsConnectionError reports whether err is a transport-level failure to
// reach the coordinator.
func IsConnectionError(err error) bool {
	return core.TextCode(err) == core.RelayErrorConnection
}

// IsTimeout reports whether err is an expired wait window.
func IsTimeout(err error) bool {
	return core.TextCode(err) == core.RelayErrorTimeout
}

// IsUnexpectedReply reports whether the coordinator misbehaved: closed
// the connection early or replied with the wrong message type.
func IsUnexpectedReply(err error) bool {
	return core.TextCode(err) == core.RelayErrorUnexpectedReply
}
