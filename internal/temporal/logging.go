package temporal

import (
	"fmt"

	"github.com/rs/zerolog"
	"go.temporal.io/sdk/log"
)

// sdkLogger folds the Temporal SDK's keyval-pair logging calls into the
// application's zerolog stream.
type sdkLogger struct {
	logger zerolog.Logger
}

func NewSDKLogger(logger zerolog.Logger) log.Logger {
	return &sdkLogger{
		logger: logger.With().Str("component", "temporal-sdk").Logger(),
	}
}

// fold attaches alternating key/value pairs to the event. A trailing key
// without a value and non-string keys are kept rather than dropped so no
// SDK diagnostics get lost.
func (l *sdkLogger) fold(event *zerolog.Event, keyvals []interface{}) *zerolog.Event {
	for i := 0; i < len(keyvals); i += 2 {
		key := fmt.Sprintf("%v", keyvals[i])
		if i+1 >= len(keyvals) {
			event = event.Interface(key, "(no value)")
			break
		}
		event = event.Interface(key, keyvals[i+1])
	}
	return event
}

func (l *sdkLogger) Debug(msg string, keyvals ...interface{}) {
	l.fold(l.logger.Debug(), keyvals).Msg(msg)
}

func (l *sdkLogger) Info(msg string, keyvals ...interface{}) {
	l.fold(l.logger.Info(), keyvals).Msg(msg)
}

func (l *sdkLogger) Warn(msg string, keyvals ...interface{}) {
	l.fold(l.logger.Warn(), keyvals).Msg(msg)
}

func (l *sdkLogger) Error(msg string, keyvals ...interface{}) {
	l.fold(l.logger.Error(), keyvals).Msg(msg)
}
