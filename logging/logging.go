package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"

	"napolihr/config"
)

// ParseLevel maps a configured level name onto a zap level. Unknown names fall
// back to info.
func ParseLevel(name string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// GlyphLevelEncoder prefixes every console line with a marker an operator can
// scan for in container logs.
func GlyphLevelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	switch l {
	case zapcore.DebugLevel:
		enc.AppendString("🔍")
	case zapcore.InfoLevel:
		enc.AppendString("✅")
	case zapcore.WarnLevel:
		enc.AppendString("⚠️")
	default:
		enc.AppendString("❌")
	}
}

// New builds the process logger writing to stdout.
func New(format, level string) (*zap.Logger, error) {
	return NewWithWriter(os.Stdout, format, level)
}

func NewWithWriter(w io.Writer, format, level string) (*zap.Logger, error) {
	var enc zapcore.Encoder
	switch format {
	case config.FormatJSON:
		cfg := zap.NewProductionEncoderConfig()
		cfg.TimeKey = "timestamp"
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(cfg)
	case config.FormatConsole, "":
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = GlyphLevelEncoder
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout(time.DateTime)
		cfg.CallerKey = ""
		enc = zapcore.NewConsoleEncoder(cfg)
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(w), ParseLevel(level))
	return zap.New(core), nil
}

// GormLogger routes gorm's own output through log. SQL statements are only
// traced when log is at debug level; otherwise gorm reports slow queries and
// errors.
func GormLogger(log *zap.Logger, level zapcore.Level) gormlogger.Interface {
	gormLevel := gormlogger.Warn
	if level <= zapcore.DebugLevel {
		gormLevel = gormlogger.Info
	}
	return gormlogger.New(
		zap.NewStdLog(log.Named("gorm")),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}
