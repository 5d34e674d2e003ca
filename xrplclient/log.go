package xrplclient

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// withLumberjackSink tees base's existing cores with a rotating file core at
// path. The file core logs at info level whatever base's own level is. A nil
// base falls back to that file core alone.
func withLumberjackSink(base *zap.Logger, path string) *zap.Logger {
	sink := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    100, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}
	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(sink),
		zapcore.InfoLevel,
	)
	if base == nil {
		return zap.New(fileCore)
	}
	return base.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, fileCore)
	}))
}
