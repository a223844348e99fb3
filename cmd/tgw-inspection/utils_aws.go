// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"log/slog"

	awsclients "github.com/gardener/tgw-inspection/pkg/clients/aws"
	"github.com/gardener/tgw-inspection/pkg/core/config"
)

// errNoAWSRegion is an error which is returned when there was no region or
// default region configured for the AWS client and none could be resolved
// from the environment.
var errNoAWSRegion = errors.New("no AWS region specified")

// newAWSClientset creates the AWS clients from the given configuration.
func newAWSClientset(ctx context.Context, conf *config.Config) (*awsclients.Clientset, error) {
	awsConf, err := awsclients.LoadConfig(ctx, conf.AWS)
	if err != nil {
		return nil, err
	}

	if awsConf.Region == "" {
		return nil, errNoAWSRegion
	}

	clientset := awsclients.NewClientset(awsConf)
	if conf.Debug {
		identity, err := clientset.CallerIdentity(ctx)
		if err != nil {
			slog.Warn("cannot get caller identity", "reason", err)
		} else {
			slog.Debug(
				"configured AWS clients",
				"region", awsConf.Region,
				"account_id", identity.AccountID,
				"arn", identity.ARN,
			)
		}
	}

	return clientset, nil
}
