package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-receipts/core"
)

// TrackingService is the mutating surface the commands drive.
type TrackingService interface {
	TrackEvent(ctx context.Context, hook core.ReceiptHookConfig, event core.Event) error
	RunCheck(ctx context.Context, hook core.ReceiptHookConfig, messageID string) error
	RegisterHook(ctx context.Context, hook core.ReceiptHookConfig) error
}

type TrackEventCommand struct {
	service TrackingService
}

func NewTrackEventCommand(service TrackingService) *TrackEventCommand {
	return &TrackEventCommand{service: service}
}

func (c *TrackEventCommand) Execute(ctx context.Context, msg TrackEventMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: tracking service is required")
	}
	if err := msg.Validate(); err != nil {
		return commandWrapValidation(err, "command: invalid track-event message")
	}
	return c.service.TrackEvent(ctx, msg.Hook, msg.Event)
}

type RunCheckCommand struct {
	service TrackingService
}

func NewRunCheckCommand(service TrackingService) *RunCheckCommand {
	return &RunCheckCommand{service: service}
}

func (c *RunCheckCommand) Execute(ctx context.Context, msg RunCheckMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: tracking service is required")
	}
	if err := msg.Validate(); err != nil {
		return commandWrapValidation(err, "command: invalid run-check message")
	}
	return c.service.RunCheck(ctx, msg.Hook, msg.MessageID)
}

type RegisterHookCommand struct {
	service TrackingService
}

func NewRegisterHookCommand(service TrackingService) *RegisterHookCommand {
	return &RegisterHookCommand{service: service}
}

func (c *RegisterHookCommand) Execute(ctx context.Context, msg RegisterHookMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: tracking service is required")
	}
	if err := msg.Validate(); err != nil {
		return commandWrapValidation(err, "command: invalid register-hook message")
	}
	if err := c.service.RegisterHook(ctx, msg.Hook); err != nil {
		return err
	}
	storeResult(ctx, msg.Hook.Name())
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
