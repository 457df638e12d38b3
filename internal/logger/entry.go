package logger

import (
	"context"
	"time"
)

// Entry collects the metric fields of a single summary line (duration_ms,
// count, size, status) and writes them through the context logger.
type Entry struct {
	fields Fields
}

// With starts an Entry with the given fields.
func With(fields Fields) *Entry {
	e := &Entry{fields: make(Fields, len(fields)+4)}
	for k, v := range fields {
		e.fields[k] = v
	}
	return e
}

// Since starts an Entry whose duration_ms is the time elapsed since start.
func Since(start time.Time) *Entry {
	return With(Fields{FieldDurationMs: time.Since(start).Milliseconds()})
}

// With adds fields to the Entry.
func (e *Entry) With(fields Fields) *Entry {
	for k, v := range fields {
		e.fields[k] = v
	}
	return e
}

// WithCount sets the count field, e.g. tags extracted or results returned.
func (e *Entry) WithCount(count int) *Entry {
	return e.With(Fields{FieldCount: count})
}

// WithSize sets the size field in bytes.
func (e *Entry) WithSize(size int64) *Entry {
	return e.With(Fields{FieldSize: size})
}

// WithStatus sets the status field.
func (e *Entry) WithStatus(status string) *Entry {
	return e.With(Fields{FieldStatus: status})
}

// Info logs at Info level through the logger carried by ctx.
func (e *Entry) Info(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).WithFields(e.fields).Infof(format, args...)
}

// Warn logs at Warn level through the logger carried by ctx.
func (e *Entry) Warn(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).WithFields(e.fields).Warnf(format, args...)
}
