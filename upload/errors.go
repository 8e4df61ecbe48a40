package upload

import (
	"fmt"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-audio-relay/core"
)

func badUploadError(message string) error {
	return goerrors.New(fmt.Sprintf("upload: %s", message), goerrors.CategoryBadInput).
		WithCode(400).
		WithTextCode(core.RelayErrorBadInput)
}

func payloadTooLargeError(maxBytes int64) error {
	return goerrors.New("upload: file exceeds configured size limit", goerrors.CategoryBadInput).
		WithCode(413).
		WithTextCode(core.RelayErrorPayloadTooLarge).
		WithMetadata(map[string]any{"max_bytes": maxBytes})
}

// uploadErrorDetail unwraps the envelope so the JSON response carries
// the bare message without category decoration.
func uploadErrorDetail(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.Message
	}
	return ""
}
