// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/cfn"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/urfave/cli/v2"

	"github.com/gardener/tgw-inspection/pkg/aws/firewall"
	"github.com/gardener/tgw-inspection/pkg/customresource"
	"github.com/gardener/tgw-inspection/pkg/metrics"
	"github.com/gardener/tgw-inspection/pkg/routes"
)

// NewRoutesCommand returns a new command for running the firewall routes
// custom resource handler.
func NewRoutesCommand() *cli.Command {
	cmd := &cli.Command{
		Name:    "routes",
		Usage:   "firewall routes custom resource handler",
		Aliases: []string{"r"},
		Subcommands: []*cli.Command{
			{
				Name:  "start",
				Usage: "start the Lambda runtime loop",
				Action: func(ctx *cli.Context) error {
					sender := &customresource.HTTPSender{
						Client: &http.Client{Timeout: getConfig(ctx).Routes.ResponseTimeout},
					}
					handler, err := newRoutesHandler(ctx, sender)
					if err != nil {
						return err
					}

					lambda.StartWithOptions(handler, lambda.WithContext(ctx.Context))
					return nil
				},
			},
			{
				Name:  "invoke",
				Usage: "handle a single custom resource request",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "event",
						Usage:    "path to the custom resource request in JSON format",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "print-response",
						Usage: "print the response instead of sending it to the response URL",
						Value: false,
					},
				},
				Action: func(ctx *cli.Context) error {
					var event cfn.Event
					if err := readEventFile(ctx.String("event"), &event); err != nil {
						return err
					}

					var sender customresource.Sender = &customresource.HTTPSender{
						Client: &http.Client{Timeout: getConfig(ctx).Routes.ResponseTimeout},
					}
					if ctx.Bool("print-response") {
						sender = printSender{}
					}

					handler, err := newRoutesHandler(ctx, sender)
					if err != nil {
						return err
					}

					_, err = handler(ctx.Context, event)
					return err
				},
			},
		},
	}

	return cmd
}

// newRoutesHandler creates the instrumented handler of the firewall routes
// custom resource.
func newRoutesHandler(ctx *cli.Context, sender customresource.Sender) (func(context.Context, cfn.Event) (cfn.Response, error), error) {
	conf := getConfig(ctx)
	clientset, err := newAWSClientset(ctx.Context, conf)
	if err != nil {
		return nil, err
	}

	handler := routes.New(
		clientset.EC2,
		firewall.NewResolver(clientset.NetworkFirewall),
		sender,
		routes.WithLogStream(lambdacontext.LogStreamName),
		routes.WithResponseTimeout(conf.Routes.ResponseTimeout),
	)

	return instrument(conf, routes.HandlerName, handler.Handle, routesOutcome), nil
}

// routesOutcome tells apart requests which were answered with FAILED, but
// did not return an error.
func routesOutcome(resp cfn.Response, err error) string {
	switch {
	case err != nil:
		return metrics.OutcomeFailed
	case resp.Status == cfn.StatusFailed:
		return metrics.OutcomeReportedFailure
	default:
		return metrics.OutcomeSuccess
	}
}

// printSender prints responses to stdout instead of sending them.
type printSender struct{}

func (printSender) Send(_ context.Context, _ string, resp cfn.Response) error {
	return printJSON(resp)
}
