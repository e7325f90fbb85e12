package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// defaultLogMaxSize is the default maximum size of a log file in MB.
	defaultLogMaxSize = 300
)

// FileLogConfig serializes file log related config.
type FileLogConfig struct {
	// RootPath is the root directory for log files.
	RootPath string `mapstructure:"rootpath" json:"rootpath"`
	// Filename is the log file name; empty disables file logging.
	Filename string `mapstructure:"filename" json:"filename"`
	// MaxSize is the maximum size of a single log file in MB.
	MaxSize int `mapstructure:"max-size" json:"max-size"`
	// MaxDays is the maximum number of days to retain old log files.
	MaxDays int `mapstructure:"max-days" json:"max-days"`
	// MaxBackups is the maximum number of old log files to retain.
	MaxBackups int `mapstructure:"max-backups" json:"max-backups"`
}

// Config serializes log related config.
type Config struct {
	// Level is the minimum enabled logging level.
	Level string `mapstructure:"level" json:"level"`
	// Format is the log format, one of "json", "text" or "console".
	Format string `mapstructure:"format" json:"format"`
	// DisableTimestamp disables automatic timestamps in output.
	DisableTimestamp bool `mapstructure:"disable-timestamp" json:"disable-timestamp"`
	// Stdout mirrors output to standard output.
	Stdout bool `mapstructure:"stdout" json:"stdout"`
	// File holds the file logging config.
	File FileLogConfig `mapstructure:"file" json:"file"`
	// Development puts the logger in development mode, which changes the
	// behavior of DPanicLevel and takes stacktraces more liberally.
	Development bool `mapstructure:"development" json:"development"`
	// DisableCaller stops annotating logs with the calling function's file
	// name and line number.
	DisableCaller bool `mapstructure:"disable-caller" json:"disable-caller"`
	// DisableStacktrace completely disables automatic stacktrace capturing.
	DisableStacktrace bool `mapstructure:"disable-stacktrace" json:"disable-stacktrace"`
	// Sampling sets a sampling policy, counted per second. See zapcore.NewSampler.
	Sampling *zap.SamplingConfig `mapstructure:"sampling" json:"sampling"`
}

// ZapProperties records some useful pieces of the constructed zap logger.
type ZapProperties struct {
	Core   zapcore.Core
	Syncer zapcore.WriteSyncer
	Level  zap.AtomicLevel
}

func (cfg *Config) buildEncoder() zapcore.Encoder {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encCfg.EncodeDuration = zapcore.StringDurationEncoder
	if cfg.DisableTimestamp {
		encCfg.TimeKey = zapcore.OmitKey
	}
	switch cfg.Format {
	case "json":
		return zapcore.NewJSONEncoder(encCfg)
	default:
		// "text" and "console" share the console encoder.
		return zapcore.NewConsoleEncoder(encCfg)
	}
}

func (cfg *Config) buildOptions(errSink zapcore.WriteSyncer) []zap.Option {
	opts := []zap.Option{zap.ErrorOutput(errSink)}

	if cfg.Development {
		opts = append(opts, zap.Development())
	}

	if !cfg.DisableCaller {
		opts = append(opts, zap.AddCaller())
	}

	stackLevel := zap.ErrorLevel
	if cfg.Development {
		stackLevel = zap.WarnLevel
	}
	if !cfg.DisableStacktrace {
		opts = append(opts, zap.AddStacktrace(stackLevel))
	}

	if cfg.Sampling != nil {
		opts = append(opts, zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewSamplerWithOptions(core, time1s, cfg.Sampling.Initial, cfg.Sampling.Thereafter)
		}))
	}
	return opts
}
