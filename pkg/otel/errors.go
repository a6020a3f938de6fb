package otel

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Error types recorded as error.type on spans.
const (
	ErrorTypeNetwork    = "network"
	ErrorTypeHTTP       = "http"
	ErrorTypeParse      = "parse"
	ErrorTypeValidation = "validation"
	ErrorTypeIO         = "io"
	ErrorTypeCanceled   = "canceled"
)

// RecordError records err on span and marks the span failed. transient
// tells dashboards whether a retry may succeed.
func RecordError(span trace.Span, err error, errorType string, transient bool) {
	span.RecordError(err, trace.WithAttributes(
		attribute.String("error.type", errorType),
		attribute.Bool("error.transient", transient),
	))
	span.SetStatus(codes.Error, err.Error())
}

// Classify guesses the error type of a wrapped error chain. Errors it cannot
// place are reported as fallback and not transient.
func Classify(err error, fallback string) (errorType string, transient bool) {
	var netErr net.Error
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	var pathErr *fs.PathError

	// fs.PathError wraps syscall.Errno, which also satisfies net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return ErrorTypeCanceled, false
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeNetwork, true
	case errors.As(err, &pathErr):
		return ErrorTypeIO, false
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		return ErrorTypeParse, false
	case errors.As(err, &netErr):
		return ErrorTypeNetwork, true
	}
	return fallback, false
}

// RecordClassifiedError is RecordError with the type taken from Classify.
func RecordClassifiedError(span trace.Span, err error, fallback string) {
	errorType, transient := Classify(err, fallback)
	RecordError(span, err, errorType, transient)
}

func SetSpanOk(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}
