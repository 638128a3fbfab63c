// meshd 是 mesh 控制面进程。
//
//	meshd [serve] [--config-name meshd] [--config-path ./config]
//	meshd token --service billing [--roles admin]
//	meshd version
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/ceyewan/meshd/clog"
	"github.com/ceyewan/meshd/config"
	"github.com/ceyewan/meshd/xerrors"
)

// version 构建时通过 -ldflags "-X main.version=..." 注入
var version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "meshd:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	cmd := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}
	switch cmd {
	case "serve":
		return serve(args)
	case "token":
		return issueToken(args, out)
	case "version":
		_, err := fmt.Fprintln(out, version)
		return err
	default:
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "unknown command %q", cmd)
	}
}

// configFlags 注册配置文件相关的公共参数
func configFlags(fs *pflag.FlagSet) *config.Config {
	cfg := &config.Config{}
	fs.StringVar(&cfg.Name, "config-name", "meshd", "config file name without extension")
	fs.StringSliceVar(&cfg.Paths, "config-path", nil, "config search paths (default ., ./config, /etc/meshd)")
	fs.StringVar(&cfg.EnvPrefix, "env-prefix", "MESHD", "environment variable prefix")
	return cfg
}

func serve(args []string) error {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	loaderCfg := configFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	boot := clog.Must(clog.NewProdDefaultConfig(), clog.WithNamespace("meshd"))
	cfg, loader, err := loadConfig(ctx, loaderCfg, boot)
	if err != nil {
		return err
	}

	logger, err := clog.New(&cfg.Log, clog.WithNamespace("meshd"), clog.WithTraceContext())
	if err != nil {
		return xerrors.Wrap(err, "create logger")
	}
	defer logger.Flush()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	go watchLogLevel(ctx, loader, logger)

	logger.Info("meshd starting",
		clog.String("version", version),
		clog.String("mesh_id", cfg.Mesh.MeshID),
		clog.String("addr", cfg.Server.Addr),
		clog.String("config", loader.ConfigFileUsed()),
	)
	runErr := a.run(ctx)
	closeErr := a.close(context.Background())
	if runErr != nil {
		return runErr
	}
	if closeErr != nil {
		logger.Warn("shutdown incomplete", clog.Error(closeErr))
	}
	logger.Info("meshd stopped")
	return nil
}

// watchLogLevel 配置文件中的 log.level 变化时实时生效
func watchLogLevel(ctx context.Context, loader config.Loader, logger clog.Logger) {
	ch, err := loader.Watch(ctx, "log.level")
	if err != nil {
		logger.Warn("watch log level failed", clog.Error(err))
		return
	}
	for ev := range ch {
		level, err := clog.ParseLevel(fmt.Sprint(ev.Value))
		if err != nil {
			logger.Warn("ignoring invalid log level", clog.Any("value", ev.Value))
			continue
		}
		if err := logger.SetLevel(level); err != nil {
			logger.Warn("set log level failed", clog.Error(err))
			continue
		}
		logger.Info("log level changed", clog.String("level", level.String()))
	}
}

// issueToken 按配置中的 auth.jwt 为服务签发令牌
func issueToken(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("token", pflag.ContinueOnError)
	loaderCfg := configFlags(fs)
	service := fs.String("service", "", "service name the token is bound to")
	roles := fs.StringSlice("roles", nil, "roles carried by the token, e.g. admin")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *service == "" {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "--service is required")
	}

	ctx := context.Background()
	cfg, _, err := loadConfig(ctx, loaderCfg, clog.Discard())
	if err != nil {
		return err
	}
	token, err := mintToken(ctx, cfg, *service, *roles)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
