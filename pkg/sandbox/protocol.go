package sandbox

import (
	stderrors "errors"
	"strings"

	"github.com/matzehuels/refcheck/pkg/artifact"
	"github.com/matzehuels/refcheck/pkg/errors"
)

// Worker channel operations. Every request gets exactly one response; the
// worker additionally sends one unsolicited response (the handshake) when it
// starts.
const (
	opLoad    = "load"
	opResolve = "resolve"
	opDestroy = "destroy"
)

type request struct {
	Op         string                `json:"op"`
	Path       string                `json:"path,omitempty"`
	Dependency *artifact.Declaration `json:"dependency,omitempty"`
}

type response struct {
	Ready    bool               `json:"ready,omitempty"`
	ID       string             `json:"id,omitempty"`
	Error    *wireError         `json:"error,omitempty"`
	Artifact *artifact.Artifact `json:"artifact,omitempty"`
	Outcome  *wireOutcome       `json:"outcome,omitempty"`
}

// wireError carries an error code across the process boundary so the parent
// can classify worker failures the same way it classifies local ones.
type wireError struct {
	Code    errors.Code `json:"code,omitempty"`
	Message string      `json:"message"`
}

type wireOutcome struct {
	Kind     Kind       `json:"kind"`
	Location string     `json:"location,omitempty"`
	Error    *wireError `json:"error,omitempty"`
}

func toWire(err error) *wireError {
	if err == nil {
		return nil
	}
	code := errors.GetCode(err)
	msg := err.Error()
	if code != "" {
		msg = strings.TrimPrefix(msg, string(code)+": ")
	}
	return &wireError{Code: code, Message: msg}
}

func (w *wireError) err() error {
	if w == nil {
		return nil
	}
	if w.Code == "" {
		return stderrors.New(w.Message)
	}
	return &errors.Error{Code: w.Code, Message: w.Message}
}

func toWireOutcome(o Outcome) *wireOutcome {
	return &wireOutcome{Kind: o.Kind, Location: o.Location, Error: toWire(o.Err)}
}

func (w *wireOutcome) outcome() Outcome {
	return Outcome{Kind: w.Kind, Location: w.Location, Err: w.Error.err()}
}
