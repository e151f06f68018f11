package logging

import (
	"io"
	"os"
	"runtime"
	"sort"
	"strings"

	chmw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

const repoMarker = "github.com/maniack/logpurge/"

var logger = logrus.New()

// CtxKey is a typed key for storing values in context without collisions across packages.
type CtxKey string

// Context keys read by the context hook.
const (
	ContextPassID CtxKey = "pass_id"
	ContextDir    CtxKey = "dir"
)

// contextHook copies request and purge identifiers from the entry context.
type contextHook struct{}

func (contextHook) Levels() []logrus.Level { return logrus.AllLevels }

func (contextHook) Fire(e *logrus.Entry) error {
	if e.Context == nil {
		return nil
	}
	if _, exists := e.Data["request_id"]; !exists {
		if rid := chmw.GetReqID(e.Context); rid != "" {
			e.Data["request_id"] = rid
		}
	}
	for _, k := range []CtxKey{ContextPassID, ContextDir} {
		if _, exists := e.Data[string(k)]; exists {
			continue
		}
		if s, ok := e.Context.Value(k).(string); ok && s != "" {
			e.Data[string(k)] = s
		}
	}
	return nil
}

// moduleHook sets "module" (e.g. "internal/purge") from the first caller frame
// inside this repo. An explicitly set module wins.
type moduleHook struct{}

func (moduleHook) Levels() []logrus.Level { return logrus.AllLevels }

func (moduleHook) Fire(e *logrus.Entry) error {
	if _, exists := e.Data["module"]; exists {
		return nil
	}
	if m := computeModule(); m != "" {
		e.Data["module"] = m
	}
	return nil
}

func computeModule() string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(4, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		skip := strings.Contains(frame.Function, "github.com/sirupsen/logrus") ||
			strings.Contains(frame.Function, repoMarker+"internal/logging")
		if !skip {
			if m := moduleFromFile(frame.File); m != "" {
				return m
			}
		}
		if !more {
			return ""
		}
	}
}

// moduleFromFile maps ".../github.com/maniack/logpurge/internal/purge/x.go" to "internal/purge".
func moduleFromFile(file string) string {
	i := strings.Index(file, repoMarker)
	if i < 0 {
		return ""
	}
	parts := strings.Split(file[i+len(repoMarker):], "/")
	switch {
	case len(parts) == 0 || parts[0] == "vendor":
		return ""
	case (parts[0] == "internal" || parts[0] == "cmd") && len(parts) >= 3:
		return parts[0] + "/" + parts[1]
	default:
		return parts[0]
	}
}

// canonicalFieldOrder defines our preferred order for log fields.
var canonicalFieldOrder = []string{
	"time",
	"module",
	"level",
	"handler",
	"method",
	"path",
	"route",
	"status",
	"size",
	// DB / GORM
	"rows",
	"sql",
	"slow",
	"threshold_ms",
	// Purge
	"pass_id",
	"trigger",
	"dir",
	"file",
	"scanned",
	"deleted",
	"failed",
	"request_id",
	"duration_ms",
}

var fieldPriority = func() map[string]int {
	m := make(map[string]int, len(canonicalFieldOrder))
	for i, k := range canonicalFieldOrder {
		m[k] = i
	}
	return m
}()

// sortKeysCanonical sorts keys by canonical order first, then alphabetically,
// keeping "error" last.
func sortKeysCanonical(keys []string) {
	sort.Slice(keys, func(i, j int) bool {
		pi, iok := fieldPriority[keys[i]]
		pj, jok := fieldPriority[keys[j]]
		switch {
		case iok && jok:
			return pi < pj
		case iok != jok:
			return iok
		}
		a, b := strings.ToLower(keys[i]), strings.ToLower(keys[j])
		if (a == "error") != (b == "error") {
			return b == "error"
		}
		return a < b
	})
}

// Init configures global logger. If debug is true, sets debug level.
// If jsonFormat is true, uses JSON formatter, otherwise text with full timestamp.
func Init(debug bool, jsonFormat bool) {
	InitWithOutput(os.Stdout, debug, jsonFormat)
}

// InitWithOutput is Init with an explicit destination.
func InitWithOutput(out io.Writer, debug bool, jsonFormat bool) {
	level := logrus.InfoLevel
	if debug {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)
	logger.SetOutput(out)
	logger.ReplaceHooks(make(logrus.LevelHooks))
	logger.AddHook(moduleHook{})
	logger.AddHook(contextHook{})

	if jsonFormat {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, SortingFunc: sortKeysCanonical})
	}
}

// L returns the configured global logger.
func L() *logrus.Logger { return logger }
