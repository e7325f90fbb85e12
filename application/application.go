package application

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lk2023060901/space-gateway-go/internal/back"
	"github.com/lk2023060901/space-gateway-go/internal/gateway"
	"github.com/lk2023060901/space-gateway-go/internal/service"
	zlog "github.com/lk2023060901/space-gateway-go/pkg/log"
	"github.com/lk2023060901/space-gateway-go/pkg/metrics"
	zviper "github.com/lk2023060901/space-gateway-go/pkg/util/viper"
)

// Config is the full configuration tree of the gateway process.
type Config struct {
	Log      zlog.Config            `mapstructure:"log"`
	Gateway  gateway.Config         `mapstructure:"gateway"`
	Identity service.IdentityConfig `mapstructure:"identity"`
	Back     back.Config            `mapstructure:"back"`
}

// Application is the runtime container of the gateway service.
// It owns configuration loading, logging setup and component wiring.
type Application struct {
	cfg Config
}

// New creates a new Application instance.
func New() *Application {
	return &Application{}
}

// Run boots the gateway and blocks until ctx is canceled or the server
// fails. Configuration file resolution priority:
//  1. Default: ./config.yaml
//  2. Env: GATEWAY_CONFIG_FILE_PATH
//  3. CLI: --config <path> or --config=<path>
func (a *Application) Run(ctx context.Context) error {
	if err := a.loadConfig(); err != nil {
		return err
	}
	if err := a.initLogging(); err != nil {
		return err
	}
	defer func() { _ = zlog.Sync() }()

	metrics.Register(prometheus.DefaultRegisterer)

	identity := service.NewIdentityClient(a.cfg.Identity)
	forwarder := back.NewForwarder(ctx, a.cfg.Back, nil)
	defer forwarder.Close()

	srv, err := gateway.NewServer(a.cfg.Gateway, identity, forwarder)
	if err != nil {
		return err
	}
	forwarder.SetHandler(srv)

	return srv.Run(ctx)
}

// Config returns the loaded configuration.
func (a *Application) Config() Config {
	return a.cfg
}

// loadConfig resolves the config file path and decodes it.
// A missing default file is not fatal; built-in defaults apply then.
func (a *Application) loadConfig() error {
	configPath := "./config.yaml"
	explicit := false

	if envPath := os.Getenv("GATEWAY_CONFIG_FILE_PATH"); envPath != "" {
		configPath = envPath
		explicit = true
	}

	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--config" {
			if i+1 >= len(args) {
				return fmt.Errorf("missing value after --config")
			}
			configPath = args[i+1]
			explicit = true
			i++
			continue
		}
		if strings.HasPrefix(arg, "--config=") {
			if val := strings.TrimPrefix(arg, "--config="); val != "" {
				configPath = val
				explicit = true
			}
		}
	}

	cfg := zviper.New()
	if err := cfg.LoadFile(configPath); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load config file %q: %w", configPath, err)
	}
	if err := cfg.Unmarshal(&a.cfg); err != nil {
		return fmt.Errorf("failed to decode config file %q: %w", configPath, err)
	}
	return nil
}

// initLogging configures the process-wide logger. Environment variables
// override the file configuration:
//   - GATEWAY_LOG_LEVEL: log level (default "info")
//   - GATEWAY_LOG_FORMAT: "text" or "json"
//   - GATEWAY_LOG_STDOUT: whether to log to stdout
//   - GATEWAY_LOG_FILE: log file path (empty means no file)
func (a *Application) initLogging() error {
	cfg := a.cfg.Log
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	cfg.Stdout = true

	if v := getenvDefault("GATEWAY_LOG_LEVEL", ""); v != "" {
		cfg.Level = v
	}
	if v := getenvDefault("GATEWAY_LOG_FORMAT", ""); v != "" {
		cfg.Format = v
	}
	if v := os.Getenv("GATEWAY_LOG_STDOUT"); v != "" {
		cfg.Stdout = getenvBool("GATEWAY_LOG_STDOUT", true)
	}
	if v := getenvDefault("GATEWAY_LOG_FILE", ""); v != "" {
		cfg.File.Filename = v
	}

	logger, props, err := zlog.InitLogger(&cfg)
	if err != nil {
		return fmt.Errorf("init global logger: %w", err)
	}
	zlog.ReplaceGlobals(logger, props)
	return nil
}

func getenvDefault(key, def string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	return val
}

func getenvBool(key string, def bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
