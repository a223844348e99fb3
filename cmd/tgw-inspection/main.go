// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/gardener/tgw-inspection/pkg/core/config"
	slogutils "github.com/gardener/tgw-inspection/pkg/utils/slog"
	"github.com/gardener/tgw-inspection/pkg/version"
)

func main() {
	app := &cli.App{
		Name:                 "tgw-inspection",
		Version:              version.Version,
		EnableBashCompletion: true,
		Usage:                "reconcilers for Transit Gateway traffic inspection",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enables debug mode, if set",
				Value: false,
			},
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to config file, built-in defaults are used if not set",
				Aliases: []string{"file"},
				EnvVars: []string{"TGW_INSPECTION_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "region",
				Usage:   "AWS region to use",
				EnvVars: []string{"AWS_REGION"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log level, one of debug, info, warn or error",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "log format, one of text or json",
				EnvVars: []string{"LOG_FORMAT"},
			},
			&cli.StringFlag{
				Name:    "pushgateway-url",
				Usage:   "URL of the Prometheus Pushgateway to push metrics to",
				EnvVars: []string{"PUSHGATEWAY_URL"},
			},
		},
		Before: func(ctx *cli.Context) error {
			conf := config.Default()
			if configFile := ctx.String("config"); configFile != "" {
				parsed, err := config.Parse(configFile)
				if err != nil {
					return fmt.Errorf("Cannot parse config: %w", err)
				}
				conf = parsed
			}

			// Overrides from flags/options
			if ctx.IsSet("debug") {
				conf.Debug = ctx.Bool("debug")
			}

			if ctx.IsSet("region") {
				conf.AWS.Region = ctx.String("region")
			}

			if ctx.IsSet("log-level") {
				conf.Logging.Level = ctx.String("log-level")
			}

			if ctx.IsSet("log-format") {
				conf.Logging.Format = ctx.String("log-format")
			}

			if ctx.IsSet("pushgateway-url") {
				conf.Metrics.PushgatewayURL = ctx.String("pushgateway-url")
			}

			if conf.Debug {
				conf.Logging.Level = string(slogutils.LevelDebug)
			}

			logger, err := slogutils.NewFromConfig(os.Stdout, conf.Logging)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			ctx.Context = context.WithValue(ctx.Context, configKey{}, conf)
			return nil
		},
		Commands: []*cli.Command{
			NewAttachmentCommand(),
			NewRoutesCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
