package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
)

// This logging code is extracted from:
// https://github.com/samber/slog-multi/blob/main/multi.go.
//
// See also: https://github.com/samber/slog-multi

var _ slog.Handler = (*fanoutHandler)(nil)

// fanoutHandler passes every record to all handlers that accept its level.
// A panicking handler is reported as an error and does not stop the others.
type fanoutHandler struct {
	handlers []slog.Handler
}

func fanout(handlers ...slog.Handler) slog.Handler {
	return &fanoutHandler{
		handlers: handlers,
	}
}

func (h *fanoutHandler) Enabled(ctx context.Context, l slog.Level) bool {
	for i := range h.handlers {
		if h.handlers[i].Enabled(ctx, l) {
			return true
		}
	}

	return false
}

func (h *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for i := range h.handlers {
		if h.handlers[i].Enabled(ctx, r.Level) {
			err := recoverHandler(func() error {
				return h.handlers[i].Handle(ctx, r.Clone())
			})
			if err != nil {
				errs = append(errs, err)
			}
		}
	}

	return errors.Join(errs...)
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var handlers []slog.Handler
	for _, handler := range h.handlers {
		handlers = append(handlers, handler.WithAttrs(slices.Clone(attrs)))
	}

	return fanout(handlers...)
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}

	var handlers []slog.Handler
	for _, handler := range h.handlers {
		handlers = append(handlers, handler.WithGroup(name))
	}

	return fanout(handlers...)
}

func recoverHandler(callback func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
			} else {
				err = fmt.Errorf("log handler panicked: %+v", r)
			}
		}
	}()

	err = callback()

	return
}
