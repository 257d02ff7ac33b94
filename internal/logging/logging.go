// Package logging builds the [*slog.Logger] used by the command line tools.
// Records are written by zerolog, optionally mirrored to a rotated file.
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	iolib "minihttp/lib/io"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

type Config struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`

	// File enables a JSON copy of every record, rotated by size.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

var DefaultConfig = Config{
	Level:      "warn",
	Format:     FormatConsole,
	MaxSizeMB:  10,
	MaxBackups: 3,
	MaxAgeDays: 7,
}

// New creates a logger writing to w. The returned closer releases the file sink, if any.
func New(cfg Config, w io.Writer) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, nil, errors.Wrapf(err, "parsing log level %q", cfg.Level)
	}

	var out io.Writer
	switch strings.ToLower(cfg.Format) {
	case FormatConsole, "":
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	case FormatJSON:
		out = w
	default:
		return nil, nil, errors.Errorf("unknown log format %q", cfg.Format)
	}

	var closer io.Closer = iolib.NopWriteCloser(w)
	if cfg.File != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		out = zerolog.MultiLevelWriter(out, file)
		closer = file
	}

	zl := zerolog.New(out).Level(zerologLevel(level))
	return slog.New(NewHandler(zl, level)), closer, nil
}

// Handler is a [slog.Handler] that hands records over to a [zerolog.Logger].
// Groups are flattened into dotted keys.
type Handler struct {
	logger zerolog.Logger
	level  slog.Leveler

	attrs  []boundAttr
	prefix string
}

type boundAttr struct {
	prefix string
	attr   slog.Attr
}

var _ slog.Handler = (*Handler)(nil)

func NewHandler(logger zerolog.Logger, level slog.Leveler) *Handler {
	return &Handler{logger: logger, level: level}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	e := h.logger.WithLevel(zerologLevel(r.Level))
	if e == nil {
		return nil
	}

	if !r.Time.IsZero() {
		e = e.Time(zerolog.TimestampFieldName, r.Time)
	}
	for _, ba := range h.attrs {
		appendAttr(e, ba.prefix, ba.attr)
	}
	r.Attrs(func(a slog.Attr) bool {
		appendAttr(e, h.prefix, a)
		return true
	})

	e.Msg(r.Message)
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}

	h2 := *h
	h2.attrs = make([]boundAttr, 0, len(h.attrs)+len(attrs))
	h2.attrs = append(h2.attrs, h.attrs...)
	for _, a := range attrs {
		h2.attrs = append(h2.attrs, boundAttr{prefix: h.prefix, attr: a})
	}
	return &h2
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}

	h2 := *h
	h2.prefix = h.prefix + name + "."
	return &h2
}

func appendAttr(e *zerolog.Event, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}

	key := prefix + a.Key
	v := a.Value

	switch v.Kind() {
	case slog.KindString:
		e.Str(key, v.String())
	case slog.KindInt64:
		e.Int64(key, v.Int64())
	case slog.KindUint64:
		e.Uint64(key, v.Uint64())
	case slog.KindFloat64:
		e.Float64(key, v.Float64())
	case slog.KindBool:
		e.Bool(key, v.Bool())
	case slog.KindDuration:
		e.Dur(key, v.Duration())
	case slog.KindTime:
		e.Time(key, v.Time())
	case slog.KindGroup:
		groupPrefix := prefix
		if a.Key != "" {
			groupPrefix = key + "."
		}
		for _, ga := range v.Group() {
			appendAttr(e, groupPrefix, ga)
		}
	default:
		if err, ok := v.Any().(error); ok {
			e.AnErr(key, err)
			return
		}
		e.Interface(key, v.Any())
	}
}

func zerologLevel(level slog.Level) zerolog.Level {
	switch {
	case level >= slog.LevelError:
		return zerolog.ErrorLevel
	case level >= slog.LevelWarn:
		return zerolog.WarnLevel
	case level >= slog.LevelInfo:
		return zerolog.InfoLevel
	case level >= slog.LevelDebug:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}
