package gologger

import (
	"context"
	"testing"

	glog "github.com/goliatone/go-logger/glog"
)

func TestResolvePrecedence(t *testing.T) {
	logger := &recordingLogger{}
	provider := &recordingProvider{logger: logger}

	resolvedProvider, resolvedLogger := Resolve("", provider, nil)
	if resolvedProvider == nil || resolvedLogger == nil {
		t.Fatalf("expected provider-backed resolution")
	}
	if provider.lastName != DefaultName {
		t.Fatalf("expected default channel name, got %q", provider.lastName)
	}

	_, fallback := Resolve("worker", nil, logger)
	if fallback == nil {
		t.Fatalf("expected logger fallback when provider is absent")
	}

	_, nop := Resolve("worker", nil, nil)
	if nop == nil {
		t.Fatalf("expected nop logger when nothing is supplied")
	}
}

func TestResolveForWorkerReturnsJobBridges(t *testing.T) {
	logger := &recordingLogger{}
	provider := &recordingProvider{logger: logger}

	_, _, jobProvider, jobLogger := ResolveForWorker("receipts.worker", provider, nil)
	if jobProvider == nil || jobLogger == nil {
		t.Fatalf("expected go-job logger bridges")
	}
	if provider.lastName != "receipts.worker" {
		t.Fatalf("expected explicit channel name, got %q", provider.lastName)
	}
}

func TestNilBridgesStayNil(t *testing.T) {
	if ToJobProvider(nil) != nil {
		t.Fatalf("expected nil provider bridge")
	}
	if ToJobLogger(nil) != nil {
		t.Fatalf("expected nil logger bridge")
	}
}

type recordingProvider struct {
	logger   glog.Logger
	lastName string
}

func (p *recordingProvider) GetLogger(name string) glog.Logger {
	p.lastName = name
	if p.logger == nil {
		return glog.Nop()
	}
	return p.logger
}

type recordingLogger struct{}

func (recordingLogger) Trace(string, ...any)                    {}
func (recordingLogger) Debug(string, ...any)                    {}
func (recordingLogger) Info(string, ...any)                     {}
func (recordingLogger) Warn(string, ...any)                     {}
func (recordingLogger) Error(string, ...any)                    {}
func (recordingLogger) Fatal(string, ...any)                    {}
func (recordingLogger) WithContext(context.Context) glog.Logger { return recordingLogger{} }
