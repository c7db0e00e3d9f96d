package domain

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedDocument = errors.New("malformed document")
	ErrConnectionClosed  = errors.New("connection closed")
	ErrViewerGone        = errors.New("viewer gone")
)

// RenderError reports a producer document the renderer could not convert.
// It matches ErrMalformedDocument via errors.Is.
type RenderError struct {
	Cause error
}

func (e *RenderError) Error() string {
	if e.Cause == nil {
		return ErrMalformedDocument.Error()
	}
	return fmt.Sprintf("%s: %v", ErrMalformedDocument, e.Cause)
}

func (e *RenderError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrMalformedDocument}
	}
	return []error{ErrMalformedDocument, e.Cause}
}
