package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// metric tag keys promoted from log fields when present.
var metricTagKeys = []string{"hook_name", "message_id", "event_type"}

// observeOperation records the counter, duration histogram, and a
// structured log line for one engine operation. err selects the
// failure path for all three.
func (s *Service) observeOperation(
	ctx context.Context,
	startedAt time.Time,
	operation string,
	err error,
	fields map[string]any,
) {
	if s == nil {
		return
	}
	operation = metricName(operation)
	elapsed := time.Since(startedAt)

	status := "success"
	if err != nil {
		status = "failure"
	}

	tags := map[string]string{"operation": operation, "status": status}
	for _, key := range metricTagKeys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		if value := strings.TrimSpace(fmt.Sprint(raw)); value != "" && value != "<nil>" {
			tags[key] = value
		}
	}
	if s.metricsRecorder != nil {
		s.metricsRecorder.IncCounter(ctx, "receipts."+operation+".total", 1, tags)
		s.metricsRecorder.ObserveHistogram(ctx, "receipts."+operation+".duration_ms", float64(elapsed.Milliseconds()), tags)
	}

	logFields := cloneFields(fields)
	logFields["operation"] = operation
	logFields["status"] = status
	logFields["duration_ms"] = elapsed.Milliseconds()
	if err != nil {
		logFields["error"] = err.Error()
		s.logError(ctx, operation+" failed", logFields)
		return
	}
	s.logInfo(ctx, operation+" succeeded", logFields)
}

func (s *Service) logInfo(ctx context.Context, message string, fields map[string]any) {
	if logger := s.fieldLogger(ctx, fields); logger != nil {
		logger.Info(message, sortedFieldArgs(fields)...)
	}
}

func (s *Service) logError(ctx context.Context, message string, fields map[string]any) {
	if logger := s.fieldLogger(ctx, fields); logger != nil {
		logger.Error(message, sortedFieldArgs(fields)...)
	}
}

// fieldLogger binds context and, when the logger supports it, the
// structured fields themselves.
func (s *Service) fieldLogger(ctx context.Context, fields map[string]any) Logger {
	if s == nil || s.logger == nil {
		return nil
	}
	logger := s.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fl, ok := logger.(FieldsLogger); ok {
		logger = fl.WithFields(cloneFields(fields))
	}
	return logger
}

func cloneFields(fields map[string]any) map[string]any {
	copied := make(map[string]any, len(fields))
	for key, value := range fields {
		copied[key] = value
	}
	return copied
}

// sortedFieldArgs flattens fields into key/value pairs in stable order
// so repeated log lines diff cleanly.
func sortedFieldArgs(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}

func metricName(operation string) string {
	operation = strings.TrimSpace(strings.ToLower(operation))
	if operation == "" {
		return "unknown"
	}
	replacer := strings.NewReplacer(" ", "_", "-", "_")
	return replacer.Replace(operation)
}
