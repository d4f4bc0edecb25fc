package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	defaultPattern    = "%time [%level] %msg %field%n"
	defaultTimeFormat = "2006-01-02 15:04:05.000"
)

type pcKey struct{}

// patternHandler is a slog.Handler that renders records through a logrus
// logger using the placeholder formatter below.
type patternHandler struct {
	logger *logrus.Logger
	attrs  []slog.Attr
	prefix string
}

func newPatternHandler(w io.Writer, level slog.Level, pattern, timeFormat string) *patternHandler {
	if pattern == "" {
		pattern = defaultPattern
	}
	if timeFormat == "" {
		timeFormat = defaultTimeFormat
	}
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(toLogrusLevel(level))
	l.SetFormatter(&formatter{pattern: pattern, time: timeFormat})
	return &patternHandler{logger: l}
}

func toLogrusLevel(l slog.Level) logrus.Level {
	switch {
	case l < slog.LevelInfo:
		return logrus.DebugLevel
	case l < slog.LevelWarn:
		return logrus.InfoLevel
	case l < slog.LevelError:
		return logrus.WarnLevel
	default:
		return logrus.ErrorLevel
	}
}

func (h *patternHandler) Enabled(_ context.Context, l slog.Level) bool {
	return h.logger.IsLevelEnabled(toLogrusLevel(l))
}

func (h *patternHandler) Handle(ctx context.Context, r slog.Record) error {
	fields := make(logrus.Fields, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		addField(fields, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		addField(fields, h.prefix, a)
		return true
	})
	if ctx == nil {
		ctx = context.Background()
	}
	h.logger.WithContext(context.WithValue(ctx, pcKey{}, r.PC)).
		WithFields(fields).
		WithTime(r.Time).
		Log(toLogrusLevel(r.Level), r.Message)
	return nil
}

func (h *patternHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	nh.attrs = slices.Clone(h.attrs)
	for _, a := range attrs {
		nh.attrs = append(nh.attrs, slog.Attr{Key: h.prefix + a.Key, Value: a.Value})
	}
	return &nh
}

func (h *patternHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := *h
	nh.prefix = h.prefix + name + "."
	return &nh
}

func addField(fields logrus.Fields, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			addField(fields, p, ga)
		}
		return
	}
	fields[prefix+a.Key] = a.Value.Any()
}

type formatter struct {
	pattern string
	time    string
}

// Format supports %time, %level, %field, %msg, %caller, %func, %goroutine and %n.
func (f *formatter) Format(entry *logrus.Entry) ([]byte, error) {
	output := f.pattern
	output = strings.Replace(output, "%time", entry.Time.Format(f.time), 1)
	output = strings.Replace(output, "%level", entry.Level.String(), 1)
	output = strings.Replace(output, "%field", buildFields(entry), 1)
	output = strings.Replace(output, "%msg", entry.Message, 1)
	if strings.Contains(output, "%caller") || strings.Contains(output, "%func") {
		fn, file, line := callerOf(entry)
		output = strings.Replace(output, "%caller", fmt.Sprintf("%s:%d", file, line), 1)
		output = strings.Replace(output, "%func", fn, 1)
	}
	if strings.Contains(output, "%goroutine") {
		output = strings.Replace(output, "%goroutine", getGoroutineID(), 1)
	}
	output = strings.ReplaceAll(output, "%n", "\n")
	return []byte(output), nil
}

// callerOf returns the short function name and package/file of the slog call site.
func callerOf(entry *logrus.Entry) (fn, file string, line int) {
	var pc uintptr
	if entry.Context != nil {
		pc, _ = entry.Context.Value(pcKey{}).(uintptr)
	}
	if pc == 0 {
		return "unknown", "unknown", 0
	}
	frame, _ := runtime.CallersFrames([]uintptr{pc}).Next()

	fn = frame.Function
	pkg := ""
	if i := strings.LastIndex(fn, "/"); i >= 0 {
		fn = fn[i+1:]
	}
	if i := strings.Index(fn, "."); i >= 0 {
		pkg, fn = fn[:i], fn[i+1:]
	}
	if i := strings.LastIndex(fn, "."); i >= 0 {
		fn = fn[i+1:]
	}
	return fn, pkg + "/" + filepath.Base(frame.File), frame.Line
}

// getGoroutineID parses the goroutine id from the stack header.
func getGoroutineID() string {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	stack := strings.TrimPrefix(string(buf[:n]), "goroutine ")
	idField := strings.Fields(stack)
	if len(idField) > 0 {
		return idField[0]
	}
	return "unknown"
}

func buildFields(entry *logrus.Entry) string {
	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	fields := make([]string, 0, len(keys))
	for _, key := range keys {
		val := entry.Data[key]
		stringVal, ok := val.(string)
		if !ok {
			stringVal = fmt.Sprint(val)
		}
		fields = append(fields, key+"="+stringVal)
	}
	return strings.Join(fields, ",")
}
