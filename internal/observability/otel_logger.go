package observability

import (
	"fmt"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
)

// OpenTelemetry logs its internal warnings at V(1), info at V(4) and
// debug at V(8).
const (
	OTelVerbosityWarn  = 1
	OTelVerbosityInfo  = 4
	OTelVerbosityDebug = 8
)

// logSink adapts Logger to logr so OpenTelemetry's internal diagnostics
// land in the gateway log.
type logSink struct {
	logger    Logger
	verbosity int
	name      string
}

// NewLogr returns a logr.Logger writing to logger. Messages above
// verbosity are dropped; V(0) and V(1) map to warn, anything higher to
// debug.
func NewLogr(logger Logger, verbosity int) logr.Logger {
	return logr.New(&logSink{logger: logger, verbosity: verbosity})
}

// InstallOTelDiagnostics routes OpenTelemetry's global logger and error
// handler to logger.
func InstallOTelDiagnostics(logger Logger, verbosity int) {
	otel.SetLogger(NewLogr(logger.With(String("component", "otel")), verbosity))
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		logger.Warn("opentelemetry error", String("component", "otel"), Error(err))
	}))
}

func (s *logSink) Init(logr.RuntimeInfo) {}

func (s *logSink) Enabled(level int) bool {
	return level <= s.verbosity
}

func (s *logSink) Info(level int, msg string, keysAndValues ...any) {
	fields := s.fields(keysAndValues)
	if level <= OTelVerbosityWarn {
		s.logger.Warn(msg, fields...)
		return
	}
	s.logger.Debug(msg, fields...)
}

func (s *logSink) Error(err error, msg string, keysAndValues ...any) {
	s.logger.Error(msg, append(s.fields(keysAndValues), Error(err))...)
}

func (s *logSink) WithValues(keysAndValues ...any) logr.LogSink {
	return &logSink{
		logger:    s.logger.With(s.fields(keysAndValues)...),
		verbosity: s.verbosity,
		name:      s.name,
	}
}

func (s *logSink) WithName(name string) logr.LogSink {
	if s.name != "" {
		name = s.name + "." + name
	}
	return &logSink{
		logger:    s.logger,
		verbosity: s.verbosity,
		name:      name,
	}
}

func (s *logSink) fields(keysAndValues []any) []Field {
	fields := make([]Field, 0, len(keysAndValues)/2+1)
	if s.name != "" {
		fields = append(fields, String("logger", s.name))
	}
	for i := 0; i < len(keysAndValues); i += 2 {
		key := fmt.Sprint(keysAndValues[i])
		if i+1 >= len(keysAndValues) {
			fields = append(fields, Any(key, "(MISSING)"))
			break
		}
		fields = append(fields, Any(key, keysAndValues[i+1]))
	}
	return fields
}
