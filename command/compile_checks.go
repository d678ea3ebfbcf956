package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[TrackEventMessage]   = (*TrackEventCommand)(nil)
	_ gocmd.Commander[RunCheckMessage]     = (*RunCheckCommand)(nil)
	_ gocmd.Commander[RegisterHookMessage] = (*RegisterHookCommand)(nil)
)
