// Command beegfs-mgmtd is the process entry point: parse flags, load the
// optional config file, build the daemon, and run it until a shutdown
// signal arrives. Grounded on the teacher's cmd/cmd.go (config.Init ->
// config.Load -> build server -> start -> wait for signal -> stop),
// generalized from blobstore's config/log stack to cobra/viper.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cubefs/cubefs/blobstore/common/trace"

	"github.com/thinkparq/mgmtd/config"
	"github.com/thinkparq/mgmtd/daemon"
)

var version = "dev"

func main() {
	root := config.NewRootCommand(version, run)
	if err := root.Execute(); err != nil {
		if ee, ok := err.(interface{ Code() config.ExitCode }); ok {
			os.Exit(int(ee.Code()))
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(int(config.ExitConfigError))
	}
}

func run(cfg config.Config) config.ExitCode {
	span, ctx := trace.StartSpanFromContext(context.Background(), "beegfs-mgmtd")

	d, err := daemon.New(ctx, cfg)
	if err != nil {
		span.Errorf("startup failed: %s", err)
		return config.ExitCodeFor(err)
	}

	if cfg.Init {
		d.Store.Close()
		span.Infof("database initialized at %s", cfg.DBFile)
		return config.ExitOK
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	span.Infof("beegfs-mgmtd listening: beemsg=:%d grpc=:%d", cfg.BeemsgPort, cfg.GRPCPort)
	if err := d.Run(ctx); err != nil {
		span.Errorf("fatal runtime error: %s", err)
		return config.ExitCodeFor(err)
	}
	return config.ExitOK
}
