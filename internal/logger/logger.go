package logger

import (
	"context"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Additional-Code/procura/internal/config"
)

// Module exposes the service logger and routes Fx's own lifecycle events
// through it at debug level.
var Module = fx.Options(
	fx.Provide(New),
	fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
		fxLog := &fxevent.ZapLogger{Logger: log.Named("fx")}
		fxLog.UseLogLevel(zapcore.DebugLevel)
		return fxLog
	}),
)

// New builds the service logger. JSON output is the default; "console"
// switches to a coloured development layout. Unknown levels fall back to info.
// While the app runs the logger is also installed as zap's global logger and
// the target of the standard library log package.
func New(lc fx.Lifecycle, cfg config.Config) (*zap.Logger, error) {
	obs := cfg.Observability
	level, err := zapcore.ParseLevel(strings.TrimSpace(obs.LogLevel))
	if err != nil {
		level = zapcore.InfoLevel
	}

	zapCfg := jsonConfig()
	if obs.LogEncoding == "console" {
		zapCfg = consoleConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	log, err := zapCfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, err
	}
	log = log.With(
		zap.String("service", obs.ServiceName),
		zap.String("environment", obs.Environment),
	)

	var restoreGlobals, restoreStdLog func()
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			restoreGlobals = zap.ReplaceGlobals(log)
			restoreStdLog = zap.RedirectStdLog(log.Named("stdlog"))
			return nil
		},
		OnStop: func(context.Context) error {
			if restoreStdLog != nil {
				restoreStdLog()
			}
			if restoreGlobals != nil {
				restoreGlobals()
			}
			_ = log.Sync()
			return nil
		},
	})
	return log, nil
}

func jsonConfig() zap.Config {
	c := zap.NewProductionConfig()
	c.Encoding = "json"
	c.EncoderConfig.TimeKey = "ts"
	c.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339Nano)
	c.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	c.EncoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	return c
}

func consoleConfig() zap.Config {
	c := zap.NewDevelopmentConfig()
	c.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	c.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return c
}
