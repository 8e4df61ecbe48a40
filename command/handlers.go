package command

import (
	"context"

	commanddispatcher "github.com/goliatone/go-command/dispatcher"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-audio-relay/core"
)

type ProcessUploadCommand struct {
	transcriber core.Transcriber
	sender      core.GatewaySender
	logger      core.Logger
}

func NewProcessUploadCommand(transcriber core.Transcriber, sender core.GatewaySender, logger core.Logger) *ProcessUploadCommand {
	return &ProcessUploadCommand{
		transcriber: transcriber,
		sender:      sender,
		logger:      glog.Ensure(logger),
	}
}

func (c *ProcessUploadCommand) Execute(ctx context.Context, msg ProcessUploadMessage) error {
	if c == nil || c.transcriber == nil {
		return commandDependencyError("command: transcriber is required")
	}
	if c.sender == nil {
		return commandDependencyError("command: gateway sender is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}

	text, err := c.transcriber.Transcribe(ctx, msg.Audio, msg.Filename)
	if err != nil {
		return commandWrapUpstream(err, "command: transcription failed")
	}
	c.logger.Info("transcription complete", "filename", msg.Filename, "chars", len(text))

	if err := c.sender.Send(ctx, text); err != nil {
		return commandWrapUpstream(err, "command: gateway send failed")
	}
	c.logger.Info("transcript forwarded to gateway", "filename", msg.Filename)
	return nil
}

// Subscribe wires the command into the dispatcher and returns the
// subscription for teardown.
func (c *ProcessUploadCommand) Subscribe() commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand[ProcessUploadMessage](c)
}

// DispatchProcessUpload routes the message through the dispatcher so
// subscribed handlers pick it up with runner middleware applied.
func DispatchProcessUpload(ctx context.Context, msg ProcessUploadMessage) error {
	return commanddispatcher.Dispatch(ctx, msg)
}
