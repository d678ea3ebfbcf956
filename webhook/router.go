package webhook

import (
	"github.com/goliatone/go-receipts/core"
)

// Outcome is a routing decision for one inbound delivery.
type Outcome string

const (
	// OutcomeAccepted hands the event to state mutation.
	OutcomeAccepted Outcome = "accepted"
	// OutcomeIgnoredForeign marks a delivery addressed to a webhook
	// this process does not own; the platform sees a client error so
	// it deactivates the stale registration.
	OutcomeIgnoredForeign Outcome = "ignored_foreign"
	// OutcomeIgnoredBotEcho suppresses events whose sender is a
	// platform service, preventing notification loops for automated
	// senders.
	OutcomeIgnoredBotEcho Outcome = "ignored_bot_echo"
)

// Route classifies an event for the given hook. Foreign-hook checks
// run before bot-echo checks; a foreign delivery never reaches sender
// inspection.
func Route(hook core.ReceiptHookConfig, event core.Event) Outcome {
	if event.TargetName != "" && !hook.MatchesTarget(event.TargetName) {
		return OutcomeIgnoredForeign
	}
	if event.Message != nil && event.Message.Sender.IsService() {
		return OutcomeIgnoredBotEcho
	}
	return OutcomeAccepted
}
