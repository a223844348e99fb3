// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/urfave/cli/v2"

	"github.com/gardener/tgw-inspection/pkg/attachment"
	"github.com/gardener/tgw-inspection/pkg/aws/exports"
)

// NewAttachmentCommand returns a new command for running the TGW attachment
// reconciler.
func NewAttachmentCommand() *cli.Command {
	cmd := &cli.Command{
		Name:    "attachment",
		Usage:   "TGW attachment association reconciler",
		Aliases: []string{"a"},
		Subcommands: []*cli.Command{
			{
				Name:  "start",
				Usage: "start the Lambda runtime loop",
				Action: func(ctx *cli.Context) error {
					handler, err := newAttachmentHandler(ctx)
					if err != nil {
						return err
					}

					lambda.StartWithOptions(handler, lambda.WithContext(ctx.Context))
					return nil
				},
			},
			{
				Name:  "invoke",
				Usage: "reconcile the attachment of a single event",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "event",
						Usage:    "path to the EventBridge event in JSON format",
						Required: true,
					},
				},
				Action: func(ctx *cli.Context) error {
					var event events.CloudWatchEvent
					if err := readEventFile(ctx.String("event"), &event); err != nil {
						return err
					}

					handler, err := newAttachmentHandler(ctx)
					if err != nil {
						return err
					}

					result, err := handler(ctx.Context, event)
					if err != nil {
						return err
					}

					return printJSON(result)
				},
			},
		},
	}

	return cmd
}

// newAttachmentHandler creates the instrumented handler of the attachment
// reconciler.
func newAttachmentHandler(ctx *cli.Context) (func(context.Context, events.CloudWatchEvent) (attachment.Result, error), error) {
	conf := getConfig(ctx)
	clientset, err := newAWSClientset(ctx.Context, conf)
	if err != nil {
		return nil, err
	}

	reconciler := attachment.New(
		clientset.EC2,
		exports.New(clientset.CloudFormation),
		conf.Attachment,
	)

	return instrument(conf, attachment.HandlerName, reconciler.Handle, errorOutcome[attachment.Result]), nil
}
