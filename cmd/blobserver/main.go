// Command blobserver serves the blob HTTP API for every database in a registry config.
//
// Example usage:
//
//	blobserver --config /etc/sfr.yaml --listen-addr 0.0.0.0:8080 --metrics-addr 0.0.0.0:8090 --log-json
package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/theirix/simple-file-repository/cmd/flags"
	"github.com/theirix/simple-file-repository/httpserver"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "blobserver",
		Usage: "Serve blob storage over HTTP",
		Flags: append([]cli.Flag{
			flags.ConfigFlag,
			flags.ListenAddrFlag,
			flags.LogServiceFlagFn("blobserver"),
		}, flags.CommonFlags...),
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			reg, err := flags.LoadRegistry(cCtx, logger)
			if err != nil {
				logger.Error("Failed to bind registry", "err", err)
				return err
			}
			logger.Info("Registry bound", "registry", reg.String())

			cfg := flags.ConfigureServer(cCtx, logger, cCtx.String(flags.ListenAddrFlag.Name))
			server, err := httpserver.New(cfg, reg)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			logger.Info("Starting server")
			server.RunInBackground()

			// Wait for termination signal
			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			reg.Unbind()
			logger.Info("Server shutdown complete")

			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
