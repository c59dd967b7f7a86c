package logger

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New
type Options struct {
	Level      string
	FilePath   string
	Production bool
	// Console receives human-facing output; stdout when nil
	Console io.Writer
}

func fileEncoderConfig() zapcore.EncoderConfig {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.MessageKey = "message"
	encoderConfig.LevelKey = "level"
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return encoderConfig
}

// New builds the service logger. Console output is always on; when FilePath
// is set, JSON lines are also written to a rotated file.
func New(opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		parsed, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}

	jsonEncoder := zapcore.NewJSONEncoder(fileEncoderConfig())

	var consoleEncoder zapcore.Encoder
	if opts.Production {
		consoleEncoder = jsonEncoder
	} else {
		consoleEncoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	}

	var console zapcore.WriteSyncer = zapcore.Lock(os.Stdout)
	if opts.Console != nil {
		console = zapcore.AddSync(opts.Console)
	}

	cores := []zapcore.Core{zapcore.NewCore(consoleEncoder, console, level)}

	if opts.FilePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(jsonEncoder, zapcore.AddSync(rotator), level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

// Must is New for program start-up, where a bad level is fatal
func Must(opts Options) *zap.Logger {
	l, err := New(opts)
	if err != nil {
		panic(err)
	}
	return l
}
