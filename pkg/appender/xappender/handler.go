package xappender

import (
	"context"
	"log/slog"
	"slices"

	"github.com/omeyang/xsink/pkg/appender/xrecord"
)

// Handler 把 slog 记录经 Layout 编码后写入 Appender
type Handler struct {
	a      *Appender
	attrs  []slog.Attr
	groups []string
}

var _ slog.Handler = (*Handler)(nil)

// Handler 返回 slog.Handler
func (a *Appender) Handler() *Handler {
	return &Handler{a: a}
}

// Enabled 实现 slog.Handler
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.a.opts.level.Level()
}

// Handle 实现 slog.Handler；编码或写入失败只计数，始终返回 nil
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if len(h.groups) > 0 && r.NumAttrs() > 0 {
		var args []any
		r.Attrs(func(a slog.Attr) bool {
			args = append(args, a)
			return true
		})
		nested := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
		nested.AddAttrs(nest(h.groups, args))
		r = nested
	}
	body, err := h.a.opts.layout.Encode(ctx, r, h.attrs)
	if err != nil {
		h.a.fail(ctx, err)
		return nil
	}
	h.a.Append(ctx, xrecord.Record{Time: r.Time, Level: r.Level, Body: body})
	return nil
}

// WithAttrs 实现 slog.Handler
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	c := h.clone()
	if len(h.groups) > 0 {
		args := make([]any, len(attrs))
		for i, a := range attrs {
			args[i] = a
		}
		c.attrs = append(c.attrs, nest(h.groups, args))
	} else {
		c.attrs = append(c.attrs, attrs...)
	}
	return c
}

// WithGroup 实现 slog.Handler
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := h.clone()
	c.groups = append(c.groups, name)
	return c
}

func (h *Handler) clone() *Handler {
	return &Handler{a: h.a, attrs: slices.Clip(h.attrs), groups: slices.Clip(h.groups)}
}

// nest 把 args 依次包进 groups（外层在前）
func nest(groups []string, args []any) slog.Attr {
	attr := slog.Group(groups[len(groups)-1], args...)
	for i := len(groups) - 2; i >= 0; i-- {
		attr = slog.Group(groups[i], attr)
	}
	return attr
}
