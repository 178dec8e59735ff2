package logrus

import (
	"context"
	"fmt"
	"io"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/sirupsen/logrus"
)

type Options struct {
	Level  string
	Format string
	Output io.Writer
}

// Logger backs glog.Logger with a logrus entry. Variadic args are read as
// key/value pairs; a trailing odd value lands under "arg".
type Logger struct {
	entry *logrus.Entry
}

func New(opts Options) *Logger {
	base := logrus.New()
	if opts.Output != nil {
		base.SetOutput(opts.Output)
	}
	if level, err := logrus.ParseLevel(strings.TrimSpace(opts.Level)); err == nil {
		base.SetLevel(level)
	}
	if strings.EqualFold(strings.TrimSpace(opts.Format), "text") {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		base.SetFormatter(&logrus.JSONFormatter{})
	}
	return &Logger{entry: logrus.NewEntry(base)}
}

func FromEntry(entry *logrus.Entry) *Logger {
	if entry == nil {
		entry = logrus.NewEntry(logrus.New())
	}
	return &Logger{entry: entry}
}

func (l *Logger) Entry() *logrus.Entry {
	return l.entry
}

func (l *Logger) Trace(msg string, args ...any) { l.log(logrus.TraceLevel, msg, args) }
func (l *Logger) Debug(msg string, args ...any) { l.log(logrus.DebugLevel, msg, args) }
func (l *Logger) Info(msg string, args ...any)  { l.log(logrus.InfoLevel, msg, args) }
func (l *Logger) Warn(msg string, args ...any)  { l.log(logrus.WarnLevel, msg, args) }
func (l *Logger) Error(msg string, args ...any) { l.log(logrus.ErrorLevel, msg, args) }
func (l *Logger) Fatal(msg string, args ...any) { l.log(logrus.FatalLevel, msg, args) }

func (l *Logger) WithContext(ctx context.Context) glog.Logger {
	if ctx == nil {
		return l
	}
	return &Logger{entry: l.entry.WithContext(ctx)}
}

func (l *Logger) WithFields(fields map[string]any) glog.Logger {
	if len(fields) == 0 {
		return l
	}
	return &Logger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

func (l *Logger) log(level logrus.Level, msg string, args []any) {
	if !l.entry.Logger.IsLevelEnabled(level) {
		return
	}
	entry := l.entry
	if fields := pairsToFields(args); len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	entry.Log(level, msg)
}

func pairsToFields(args []any) logrus.Fields {
	if len(args) == 0 {
		return nil
	}
	fields := make(logrus.Fields, len(args)/2+1)
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			fields["arg"] = args[i]
			break
		}
		key := strings.TrimSpace(fmt.Sprint(args[i]))
		if key == "" {
			continue
		}
		fields[key] = args[i+1]
	}
	return fields
}

// Provider hands out loggers tagged with the requested logger name.
type Provider struct {
	root *Logger
}

func NewProvider(root *Logger) *Provider {
	if root == nil {
		root = New(Options{})
	}
	return &Provider{root: root}
}

func (p *Provider) GetLogger(name string) glog.Logger {
	name = strings.TrimSpace(name)
	if name == "" {
		return p.root
	}
	return &Logger{entry: p.root.entry.WithField("logger", name)}
}

var (
	_ glog.Logger         = (*Logger)(nil)
	_ glog.FieldsLogger   = (*Logger)(nil)
	_ glog.LoggerProvider = (*Provider)(nil)
)
