package core

import (
	"context"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

// TrackEvent applies one accepted platform event to the snapshot
// lifecycle for the hook:
//
//	sent       -> store the snapshot and arm the delayed check
//	delivered  -> replace the snapshot only while one is tracked
//	read       -> replace the snapshot only while one is tracked
//	deleted    -> drop the snapshot; the armed check finds nothing
//
// Updates after the window fired or after deletion are silently
// ignored; a delivered or read event never resurrects tracking, and a
// repeated sent event restarts the window under the platform's own
// redelivery semantics.
func (s *Service) TrackEvent(ctx context.Context, hook ReceiptHookConfig, event Event) error {
	if s == nil {
		return InternalError("core: service is nil", nil)
	}
	startedAt := s.now()
	fields := map[string]any{
		"hook_name":  hook.OriginalName(),
		"event_type": string(event.Type),
	}
	if event.Message != nil {
		fields["message_id"] = event.Message.ID
	}

	err := s.trackEvent(ctx, hook, event, fields)
	s.observeOperation(ctx, startedAt, "track_event", err, fields)
	return s.mapError(err)
}

func (s *Service) trackEvent(ctx context.Context, hook ReceiptHookConfig, event Event, fields map[string]any) error {
	if event.Type.IsConversationEvent() || !event.Type.IsMessageEvent() {
		fields["outcome"] = "skipped"
		return nil
	}
	if event.Message == nil || event.Message.ID == "" {
		return BadInputError("core: message event without a message", fields)
	}

	hookName := hook.OriginalName()
	messageID := event.Message.ID

	switch event.Type {
	case EventMessageSent:
		if err := s.store.Save(ctx, hookName, messageID, *event.Message); err != nil {
			return storeFailure(err, "core: save message snapshot", fields)
		}
		if s.scheduler == nil {
			return InternalError("core: check scheduler is not configured", fields)
		}
		if err := s.scheduler.Arm(ctx, hookName, messageID, hook.Delay()); err != nil {
			return ReceiptsWrapError(
				err,
				goerrors.CategoryOperation,
				"core: arm delayed check",
				http.StatusInternalServerError,
				ReceiptsErrorInternal,
				fields,
			)
		}
		fields["outcome"] = "tracked"
		return nil

	case EventMessageDelivered, EventMessageRead:
		updated, err := s.store.Update(ctx, hookName, messageID, *event.Message)
		if err != nil {
			return storeFailure(err, "core: update message snapshot", fields)
		}
		if updated {
			fields["outcome"] = "updated"
		} else {
			fields["outcome"] = "ignored_untracked"
		}
		return nil

	case EventMessageDeleted:
		if err := s.store.Delete(ctx, hookName, messageID); err != nil {
			return storeFailure(err, "core: delete message snapshot", fields)
		}
		fields["outcome"] = "deleted"
		return nil
	}

	fields["outcome"] = "skipped"
	return nil
}

func storeFailure(err error, message string, metadata map[string]any) error {
	return ReceiptsWrapError(
		err,
		goerrors.CategoryOperation,
		message,
		http.StatusInternalServerError,
		ReceiptsErrorStoreFailure,
		metadata,
	)
}
