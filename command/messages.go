package command

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-receipts/core"
)

const (
	TypeTrackEvent   = "receipts.command.event.track"
	TypeRunCheck     = "receipts.command.check.run"
	TypeRegisterHook = "receipts.command.hook.register"
)

type TrackEventMessage struct {
	Hook  core.ReceiptHookConfig
	Event core.Event
}

func (TrackEventMessage) Type() string { return TypeTrackEvent }

func (m TrackEventMessage) Validate() error {
	if strings.TrimSpace(m.Hook.OriginalName()) == "" {
		return fmt.Errorf("command: hook is required")
	}
	if strings.TrimSpace(string(m.Event.Type)) == "" {
		return fmt.Errorf("command: event type is required")
	}
	if m.Event.Type.IsMessageEvent() && (m.Event.Message == nil || strings.TrimSpace(m.Event.Message.ID) == "") {
		return fmt.Errorf("command: message event requires a message id")
	}
	return nil
}

type RunCheckMessage struct {
	Hook      core.ReceiptHookConfig
	MessageID string
}

func (RunCheckMessage) Type() string { return TypeRunCheck }

func (m RunCheckMessage) Validate() error {
	if strings.TrimSpace(m.Hook.OriginalName()) == "" {
		return fmt.Errorf("command: hook is required")
	}
	if strings.TrimSpace(m.MessageID) == "" {
		return fmt.Errorf("command: message id is required")
	}
	return nil
}

type RegisterHookMessage struct {
	Hook core.ReceiptHookConfig
}

func (RegisterHookMessage) Type() string { return TypeRegisterHook }

func (m RegisterHookMessage) Validate() error {
	if strings.TrimSpace(m.Hook.OriginalName()) == "" {
		return fmt.Errorf("command: hook is required")
	}
	if m.Hook.Delay() <= 0 {
		return fmt.Errorf("command: hook delay must be positive")
	}
	return nil
}
