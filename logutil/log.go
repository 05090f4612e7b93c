// Package logutil provides a small leveled-logger wrapper used throughout
// the core. The call surface mirrors tinykv's own log/log.go wrapper
// (Info/Infof/Warn/Warnf/Error/Errorf/Fatal/Fatalf, SetLevelByString) but the
// backing implementation is a zap SugaredLogger so that executor and queue
// manager goroutines can attach structured fields (partition, txn_id)
// instead of formatting them into the message.
package logutil

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	global *zap.SugaredLogger
)

func init() {
	global = newLogger(zapcore.InfoLevel)
}

func newLogger(level zapcore.Level) *zap.SugaredLogger {
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(os.Stderr), level)
	return zap.New(core, zap.AddCaller()).Sugar()
}

// SetLevelByString reparents the global logger at the named level. Unknown
// names fall back to info, matching tinykv's getLogLevel() default.
func SetLevelByString(name string) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		level = zapcore.InfoLevel
	}
	mu.Lock()
	global = newLogger(level)
	mu.Unlock()
}

func logger() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// With returns a child logger carrying the given structured fields, e.g.
// logutil.With("partition", 3, "txn_id", id).Infof("granted lock")
func With(args ...interface{}) *zap.SugaredLogger {
	return logger().With(args...)
}

func Debug(args ...interface{})                 { logger().Debug(args...) }
func Debugf(format string, args ...interface{})  { logger().Debugf(format, args...) }
func Info(args ...interface{})                   { logger().Info(args...) }
func Infof(format string, args ...interface{})   { logger().Infof(format, args...) }
func Warn(args ...interface{})                   { logger().Warn(args...) }
func Warnf(format string, args ...interface{})   { logger().Warnf(format, args...) }
func Error(args ...interface{})                  { logger().Error(args...) }
func Errorf(format string, args ...interface{})  { logger().Errorf(format, args...) }
func Fatal(args ...interface{})                  { logger().Fatal(args...) }
func Fatalf(format string, args ...interface{})  { logger().Fatalf(format, args...) }
