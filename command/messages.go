// Package command holds the dispatchable messages for the upload
// pipeline: transcribe an accepted audio file and forward the
// transcript to the gateway.
package command

import (
	"fmt"
	"strings"
)

const TypeProcessUpload = "relay.command.upload.process"

type ProcessUploadMessage struct {
	Audio    []byte
	Filename string
}

func (ProcessUploadMessage) Type() string { return TypeProcessUpload }

func (m ProcessUploadMessage) Validate() error {
	if len(m.Audio) == 0 {
		return fmt.Errorf("command: audio payload is required")
	}
	if strings.TrimSpace(m.Filename) == "" {
		return fmt.Errorf("command: filename is required")
	}
	return nil
}
