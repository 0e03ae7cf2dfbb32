package log

import (
	"errors"
	"fmt"
	"os"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	STDOUT     bool   // stdout
	File       string // log output file path, empty means no log file
	Level      string // debug | info (default) | warn | error
	MaxAge     int    // days to keep rotated files, 0 keeps all
	MaxSize    int    // megabytes per file
	MaxBackups int    // rotated files to keep
	Compress   bool   // gzip rotated files
	JsonFormat bool   // json encoder instead of console
}

// Logger and Sugar discard everything until Init succeeds.
var (
	Logger = zap.NewNop()
	Sugar  = Logger.Sugar()
)

func New(config Config) (*zap.Logger, error) {

	var wss []zapcore.WriteSyncer
	if len(config.File) > 0 {
		hook := lumberjack.Logger{
			Filename:   config.File,
			MaxSize:    config.MaxSize, // megabytes
			MaxAge:     config.MaxAge,
			MaxBackups: config.MaxBackups,
			LocalTime:  false,
			Compress:   config.Compress,
		}
		wss = append(wss, zapcore.AddSync(&hook))
	}

	if config.STDOUT {
		wss = append(wss, zapcore.AddSync(os.Stdout))
	}

	if len(wss) == 0 {
		return nil, errors.New("write syncer needed")
	}

	level := zapcore.InfoLevel
	if len(config.Level) > 0 {
		var err error
		if level, err = zapcore.ParseLevel(config.Level); err != nil {
			return nil, fmt.Errorf("log level %q: %w", config.Level, err)
		}
	}

	cfg := zapcore.EncoderConfig{
		TimeKey:        "T",
		LevelKey:       "L",
		NameKey:        "N",
		CallerKey:      "C",
		MessageKey:     "M",
		StacktraceKey:  "S",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}

	var enc zapcore.Encoder
	if config.JsonFormat {
		enc = zapcore.NewJSONEncoder(cfg)
	} else {
		enc = zapcore.NewConsoleEncoder(cfg)
	}

	return zap.New(zapcore.NewCore(enc, zapcore.NewMultiWriteSyncer(wss...), level), zap.AddCaller()), nil
}

// Init replaces the package loggers. On error the previous loggers stay in place.
func Init(config Config) error {
	l, err := New(config)
	if err != nil {
		return err
	}
	Replace(l)
	return nil
}

func Replace(l *zap.Logger) {
	Logger = l
	Sugar = l.Sugar()
}

func Sync() {
	_ = Logger.Sync()
}
