package log

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const time1s = time.Second

var _globalL, _globalP, _globalS atomic.Value

func init() {
	l, p := newStdLogger()
	_globalL.Store(l)
	_globalP.Store(p)
	_globalS.Store(l.Sugar())
}

// newStdLogger creates a console logger writing to stderr, used before
// InitLogger is called by the application bootstrap.
func newStdLogger() (*zap.Logger, *ZapProperties) {
	cfg := &Config{Level: "info", Format: "text", Stdout: false}
	lg, prop, _ := InitLoggerWithWriteSyncer(cfg, zapcore.AddSync(os.Stderr), zapcore.AddSync(os.Stderr))
	return lg, prop
}

// InitLogger initializes a zap logger from config.
func InitLogger(cfg *Config, opts ...zap.Option) (*zap.Logger, *ZapProperties, error) {
	var outputs []zapcore.WriteSyncer
	if len(cfg.File.Filename) > 0 {
		lg, err := initFileLog(&cfg.File)
		if err != nil {
			return nil, nil, err
		}
		outputs = append(outputs, zapcore.AddSync(lg))
	}
	if cfg.Stdout {
		stdOut, _, err := zap.Open("stdout")
		if err != nil {
			return nil, nil, err
		}
		outputs = append(outputs, stdOut)
	}
	if len(outputs) == 0 {
		outputs = append(outputs, zapcore.AddSync(noopWriter{}))
	}
	syncer := zap.CombineWriteSyncers(outputs...)
	return InitLoggerWithWriteSyncer(cfg, syncer, syncer, opts...)
}

// InitLoggerWithWriteSyncer initializes a zap logger with the given write
// syncer, bypassing file/stdout resolution.
func InitLoggerWithWriteSyncer(cfg *Config, output, errOutput zapcore.WriteSyncer, opts ...zap.Option) (*zap.Logger, *ZapProperties, error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, nil, errors.Wrapf(err, "unknown log level %q", cfg.Level)
	}

	core := zapcore.NewCore(cfg.buildEncoder(), output, level)
	opts = append(cfg.buildOptions(errOutput), opts...)
	lg := zap.New(core, opts...)
	r := &ZapProperties{
		Core:   core,
		Syncer: output,
		Level:  level,
	}
	return lg, r, nil
}

// initFileLog initializes file based logging with rotation via lumberjack.
func initFileLog(cfg *FileLogConfig) (*lumberjack.Logger, error) {
	if st, err := os.Stat(cfg.Filename); err == nil && st.IsDir() {
		return nil, errors.New("can't use directory as log file name")
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = defaultLogMaxSize
	}

	return &lumberjack.Logger{
		Filename:   filepath.Join(cfg.RootPath, cfg.Filename),
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxDays,
		LocalTime:  true,
	}, nil
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }

// L returns the global Logger, which can be reconfigured with ReplaceGlobals.
// It's safe for concurrent use.
func L() *zap.Logger {
	return _globalL.Load().(*zap.Logger)
}

// S returns the global SugaredLogger.
func S() *zap.SugaredLogger {
	return _globalS.Load().(*zap.SugaredLogger)
}

// ReplaceGlobals replaces the global Logger and SugaredLogger.
// It's safe for concurrent use.
func ReplaceGlobals(logger *zap.Logger, props *ZapProperties) {
	_globalL.Store(logger)
	_globalS.Store(logger.Sugar())
	_globalP.Store(props)
}

// Sync flushes any buffered log entries.
func Sync() error {
	if err := L().Sync(); err != nil {
		return err
	}
	return S().Sync()
}

// Debug logs a message at DebugLevel with the global logger.
func Debug(msg string, fields ...zap.Field) {
	L().WithOptions(zap.AddCallerSkip(1)).Debug(msg, fields...)
}

// Info logs a message at InfoLevel with the global logger.
func Info(msg string, fields ...zap.Field) {
	L().WithOptions(zap.AddCallerSkip(1)).Info(msg, fields...)
}

// Warn logs a message at WarnLevel with the global logger.
func Warn(msg string, fields ...zap.Field) {
	L().WithOptions(zap.AddCallerSkip(1)).Warn(msg, fields...)
}

// Error logs a message at ErrorLevel with the global logger.
func Error(msg string, fields ...zap.Field) {
	L().WithOptions(zap.AddCallerSkip(1)).Error(msg, fields...)
}

// Fatal logs a message at FatalLevel with the global logger, then calls
// os.Exit(1).
func Fatal(msg string, fields ...zap.Field) {
	L().WithOptions(zap.AddCallerSkip(1)).Fatal(msg, fields...)
}

// With creates a child of the global logger with the given fields attached.
func With(fields ...zap.Field) *zap.Logger {
	return L().With(fields...)
}

type ctxLogKeyType struct{}

// CtxLogKey is the context key the logger is stashed under.
var CtxLogKey = ctxLogKeyType{}

// Ctx returns the logger stored in ctx by WithFields, or the global logger
// when ctx carries none.
func Ctx(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return L()
	}
	if lg, ok := ctx.Value(CtxLogKey).(*zap.Logger); ok && lg != nil {
		return lg
	}
	return L()
}

// WithFields attaches fields to the logger carried by ctx (or the global
// logger) and stores the result back into a derived context.
func WithFields(ctx context.Context, fields ...zap.Field) context.Context {
	return context.WithValue(ctx, CtxLogKey, Ctx(ctx).With(fields...))
}
