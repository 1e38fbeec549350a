package postbuild

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ConfigError stops a build before any file is processed.
type ConfigError struct {
	Plugin string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: invalid configuration: %v", e.Plugin, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// FileError is a failure that concerns a single file. It records the stack
// where it was created.
type FileError struct {
	Name string
	Err  error
}

func newFileError(name string, err error) *FileError {
	return &FileError{
		Name: name,
		Err:  errors.WithStack(err),
	}
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Name, errors.Cause(e.Err))
}

func (e *FileError) Unwrap() error {
	return e.Err
}

func (e *FileError) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		fmt.Fprintf(s, "%s: %+v", e.Name, e.Err)
		return
	}
	io.WriteString(s, e.Error())
}

// TaskError is the failure of one queued task. Index is the enqueue order.
type TaskError struct {
	Index int
	Err   error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %d: %v", e.Index, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// AggregateError lists every task that failed during one queue drain.
type AggregateError struct {
	Errors []*TaskError
}

func newAggregateError(errs []*TaskError) *AggregateError {
	sort.Slice(errs, func(i, j int) bool {
		return errs[i].Index < errs[j].Index
	})
	return &AggregateError{Errors: errs}
}

func (e *AggregateError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, te := range e.Errors {
		msgs = append(msgs, te.Error())
	}
	return fmt.Sprintf("%d tasks failed: %s", len(e.Errors), strings.Join(msgs, "; "))
}

func (e *AggregateError) Unwrap() []error {
	errs := make([]error, 0, len(e.Errors))
	for _, te := range e.Errors {
		errs = append(errs, te)
	}
	return errs
}

// Format prints the stack of every failure with %+v.
func (e *AggregateError) Format(s fmt.State, verb rune) {
	if verb != 'v' || !s.Flag('+') {
		io.WriteString(s, e.Error())
		return
	}
	fmt.Fprintf(s, "%d tasks failed:", len(e.Errors))
	for _, te := range e.Errors {
		fmt.Fprintf(s, "\n[%d] %+v", te.Index, te.Err)
	}
}
