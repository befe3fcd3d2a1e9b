package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Log *zap.Logger

func init() {
	Log = newLogger(zapcore.DebugLevel, "console")
}

// Init rebuilds the process logger. format is "console" (colour levels) or "json".
func Init(level, format string) error {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil {
		return fmt.Errorf("log level %q: %w", level, err)
	}
	Log = newLogger(lvl, format)
	zap.ReplaceGlobals(Log)
	return nil
}

func newLogger(lvl zapcore.Level, format string) *zap.Logger {
	encCfg := zapcore.EncoderConfig{
		TimeKey:       "ts",
		LevelKey:      "level",
		NameKey:       "logger",
		CallerKey:     "caller",
		MessageKey:    "msg",
		StacktraceKey: "stack",
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeTime:    zapcore.ISO8601TimeEncoder,
		EncodeLevel:   zapcore.CapitalColorLevelEncoder, // 彩色等级
		EncodeCaller:  zapcore.ShortCallerEncoder,
	}

	var enc zapcore.Encoder
	if strings.EqualFold(format, "json") {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(os.Stdout), lvl)
	return zap.New(core, zap.AddCaller())
}

// Named returns a child logger for one component, e.g. logger.Named("bus").
func Named(name string) *zap.Logger { return Log.Named(name) }

// Sync flushes buffered entries; errors from stdout sync are ignored.
func Sync() { _ = Log.Sync() }

// 快捷方法
func Info(msg string, fields ...zap.Field) { Log.WithOptions(zap.AddCallerSkip(1)).Info(msg, fields...) }
func Infof(format string, args ...interface{}) {
	Log.WithOptions(zap.AddCallerSkip(1)).Info(fmt.Sprintf(format, args...))
}
func Warn(msg string, fields ...zap.Field)  { Log.WithOptions(zap.AddCallerSkip(1)).Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { Log.WithOptions(zap.AddCallerSkip(1)).Error(msg, fields...) }

func Errorf(format string, args ...interface{}) {
	Log.WithOptions(zap.AddCallerSkip(1)).Error(fmt.Sprintf(format, args...))
}

func Debug(msg string, fields ...zap.Field) { Log.WithOptions(zap.AddCallerSkip(1)).Debug(msg, fields...) }
