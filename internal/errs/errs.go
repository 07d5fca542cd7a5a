// Package errs defines the failure taxonomy raised by the encoding pipeline.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrData     = errors.New("data error")
	ErrShape    = errors.New("shape error")
	ErrResource = errors.New("resource error")
)

// Pipeline stages reported with every failure.
const (
	StageLoad     = "load"
	StageEmbed    = "embed"
	StageMetrics  = "metrics"
	StageCompress = "compress"
	StageSort     = "sort"
	StagePad      = "pad"
	StageEncode   = "encode"
	StageClassify = "classify"
)

// Error carries the failing user (when known), the stage, and any shape diagnostics.
type Error struct {
	Kind   error
	UserID string
	Stage  string
	Shapes []string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Stage != "" {
		b.WriteString(" at ")
		b.WriteString(e.Stage)
	}
	if e.UserID != "" {
		b.WriteString(" for user ")
		b.WriteString(e.UserID)
	}
	if len(e.Shapes) > 0 {
		fmt.Fprintf(&b, " shapes=[%s]", strings.Join(e.Shapes, " "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinel so errors.Is(err, ErrShape) works through wrapping.
func (e *Error) Is(target error) bool { return target == e.Kind }

func Data(stage, userID string, err error) *Error {
	return &Error{Kind: ErrData, Stage: stage, UserID: userID, Err: err}
}

func Resource(stage, userID string, err error) *Error {
	return &Error{Kind: ErrResource, Stage: stage, UserID: userID, Err: err}
}

func Shape(stage string, shapes []string, err error) *Error {
	return &Error{Kind: ErrShape, Stage: stage, Shapes: shapes, Err: err}
}

// WithUser returns err annotated with userID if it is a pipeline error without one.
func WithUser(err error, userID string) error {
	var pe *Error
	if errors.As(err, &pe) && pe.UserID == "" {
		cp := *pe
		cp.UserID = userID
		return &cp
	}
	return err
}

// As extracts the pipeline error from err, if any.
func As(err error) (*Error, bool) {
	var pe *Error
	ok := errors.As(err, &pe)
	return pe, ok
}

func IsData(err error) bool     { return errors.Is(err, ErrData) }
func IsShape(err error) bool    { return errors.Is(err, ErrShape) }
func IsResource(err error) bool { return errors.Is(err, ErrResource) }
