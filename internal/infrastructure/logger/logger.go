package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Config 日志配置
type Config struct {
	Level string // debug, info, warn, error
	Format string // json, console
	OutputPath string // stdout, stderr, or file path
	MaxSizeMB int // rotate after this size, when OutputPath is a file
	MaxBackups int
	MaxAgeDays int
}

// NewLogger 创建新的日志实例. When OutputPath names a file (not
// stdout/stderr) the file sink is wrapped in lumberjack so logs/app.log
// rotates instead of growing unbounded, matching how the rest of ngoclaw's
// components handle log rotation rather than hand-rolling a scheme here.
func NewLogger(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	encoder := zapcore.NewJSONEncoder(encoderConfig)
	if cfg.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	var sink zapcore.WriteSyncer
	switch cfg.OutputPath {
	case "", "stdout":
		sink = zapcore.AddSync(os.Stdout)
	case "stderr":
		sink = zapcore.AddSync(os.Stderr)
	default:
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename: cfg.OutputPath,
			MaxSize: orDefault(cfg.MaxSizeMB, 50),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
			MaxAge: orDefault(cfg.MaxAgeDays, 14),
			Compress: true,
		})
	}

	core := zapcore.NewCore(encoder, sink, zap.NewAtomicLevelAt(level))
	return zap.New(core, zap.ErrorOutput(zapcore.AddSync(os.Stderr))), nil
}

// NewFCDebugLogger builds a per-module function-call debug logger under
// dir/<module>.log, rotated the same way as the main log.
func NewFCDebugLogger(dir, module string, maxSizeMB, maxBackups, maxAgeDays int) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderConfig)

	sink := zapcore.AddSync(&lumberjack.Logger{
		Filename: dir + "/" + module + ".log",
		MaxSize: orDefault(maxSizeMB, 50),
		MaxBackups: orDefault(maxBackups, 5),
		MaxAge: orDefault(maxAgeDays, 14),
		Compress: true,
	})
	core := zapcore.NewCore(encoder, sink, zap.NewAtomicLevelAt(zapcore.DebugLevel))
	return zap.New(core)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
