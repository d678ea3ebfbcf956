package receipts

import (
	"fmt"

	receiptscommand "github.com/goliatone/go-receipts/command"
)

type Commands struct {
	TrackEvent   *receiptscommand.TrackEventCommand
	RunCheck     *receiptscommand.RunCheckCommand
	RegisterHook *receiptscommand.RegisterHookCommand
}

type Facade struct {
	service  receiptscommand.TrackingService
	commands Commands
}

func NewFacade(service receiptscommand.TrackingService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("receipts: tracking service is required")
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		TrackEvent:   receiptscommand.NewTrackEventCommand(service),
		RunCheck:     receiptscommand.NewRunCheckCommand(service),
		RegisterHook: receiptscommand.NewRegisterHookCommand(service),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Service() receiptscommand.TrackingService {
	if f == nil {
		return nil
	}
	return f.service
}
