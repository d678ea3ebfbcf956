package core

import (
	"context"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

// RunCheck is the fire-time evaluation for one tracked message. It
// atomically consumes the stored snapshot, filters recipients still in
// a watched status in stored order, optionally enriches identities,
// and emits at most one downstream notification.
//
// Snapshot absence is a normal outcome: the message was deleted before
// the window fired, or a redelivered check already consumed it. Both
// terminate silently.
func (s *Service) RunCheck(ctx context.Context, hook ReceiptHookConfig, messageID string) error {
	if s == nil {
		return InternalError("core: service is nil", nil)
	}
	startedAt := s.now()
	fields := map[string]any{
		"hook_name":  hook.OriginalName(),
		"message_id": messageID,
	}

	err, dropped := s.runCheck(ctx, hook, messageID, fields)
	s.observeOperation(ctx, startedAt, "run_check", err, fields)
	if dropped {
		// Publish exhaustion is terminal: the snapshot is consumed and
		// there is no redelivery path, so the failure must not bubble
		// into the task runner's retry loop.
		return nil
	}
	return s.mapError(err)
}

func (s *Service) runCheck(ctx context.Context, hook ReceiptHookConfig, messageID string, fields map[string]any) (error, bool) {
	snapshot, ok, err := s.store.Take(ctx, hook.OriginalName(), messageID)
	if err != nil {
		return storeFailure(err, "core: take message snapshot", fields), false
	}
	if !ok {
		fields["outcome"] = "no_snapshot"
		return nil, false
	}

	recipients := filterRecipients(snapshot.Recipients, hook.WatchedStatuses())
	fields["recipient_count"] = len(recipients)
	if len(recipients) == 0 {
		fields["outcome"] = "all_progressed"
		return nil, false
	}

	identities := map[string]*IdentityRecord{}
	if s.enricher != nil && hook.IdentityMode() != IdentityModeOff {
		identities = s.enricher.Enrich(ctx, hook, snapshot.Sender.UserID, recipients)
	}

	job := NotificationJob{
		Hook:       hook.OriginalName(),
		Message:    snapshot,
		Recipients: recipients,
		Identities: identities,
	}
	if err := s.emit(ctx, job, fields); err != nil {
		s.logError(ctx, "notification dropped after retry exhaustion", cloneFields(fields))
		fields["outcome"] = "dropped"
		return err, true
	}
	fields["outcome"] = "emitted"
	return nil, false
}

// filterRecipients returns the user ids still in a watched status,
// preserving the snapshot's stored insertion order.
func filterRecipients(recipients RecipientStatusList, watched StatusSet) []string {
	out := make([]string, 0, len(recipients))
	for _, entry := range recipients {
		if watched.Contains(entry.Status) {
			out = append(out, entry.UserID)
		}
	}
	return out
}

// emit publishes the consolidated job, retrying transient publish
// failures with exponential backoff up to the configured ceiling.
func (s *Service) emit(ctx context.Context, job NotificationJob, fields map[string]any) error {
	if s.publisher == nil {
		return InternalError("core: notification publisher is not configured", fields)
	}

	var lastErr error
	for attempt := 0; attempt < s.emitMaxAttempts; attempt++ {
		if attempt > 0 {
			delay := s.emitBackoff << (attempt - 1)
			if s.emitMaxBackoff > 0 && delay > s.emitMaxBackoff {
				delay = s.emitMaxBackoff
			}
			if err := s.sleep(ctx, delay); err != nil {
				return ReceiptsWrapError(
					err,
					goerrors.CategoryOperation,
					"core: emit interrupted",
					http.StatusInternalServerError,
					ReceiptsErrorPublishFailure,
					fields,
				)
			}
		}
		lastErr = s.publisher.Publish(ctx, job)
		if lastErr == nil {
			fields["emit_attempts"] = attempt + 1
			return nil
		}
		s.logError(ctx, "notification publish failed", map[string]any{
			"hook_name":  job.Hook,
			"message_id": job.Message.ID,
			"attempt":    attempt + 1,
			"error":      lastErr.Error(),
		})
	}
	fields["emit_attempts"] = s.emitMaxAttempts
	return ReceiptsWrapError(
		lastErr,
		goerrors.CategoryOperation,
		"core: publish notification",
		http.StatusInternalServerError,
		ReceiptsErrorPublishFailure,
		fields,
	)
}
