// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package aws provides the AWS API clients used by the reconcilers.
package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/ratelimit"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/networkfirewall"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/gardener/tgw-inspection/pkg/core/config"
)

// Identity provides information about the caller identity of a [Clientset].
type Identity struct {
	// AccountID is the AWS Account ID that owns or contains the calling
	// entity.
	AccountID string

	// ARN is the AWS ARN associated with the calling entity.
	ARN string

	// UserID is the unique identifier of the calling identity.
	UserID string
}

// Clientset provides the AWS API clients used by the reconcilers.
type Clientset struct {
	// EC2 is the client for the EC2 API, which manages TGW attachments
	// and VPC routes.
	EC2 *ec2.Client

	// NetworkFirewall is the client for the AWS Network Firewall API.
	NetworkFirewall *networkfirewall.Client

	// CloudFormation is the client for the CloudFormation API, which
	// provides the stack exports.
	CloudFormation *cloudformation.Client

	// STS is the client for the AWS STS API.
	STS *sts.Client
}

// NewRetryer returns the standard retryer with exponential jitter backoff
// used by all clients of a [Clientset].
func NewRetryer(maxAttempts int, maxBackoff time.Duration) aws.Retryer {
	return retry.NewStandard(func(o *retry.StandardOptions) {
		o.MaxAttempts = maxAttempts
		o.MaxBackoff = maxBackoff
		o.Backoff = retry.NewExponentialJitterBackoff(maxBackoff)
		o.RateLimiter = ratelimit.None
	})
}

// LoadConfig loads the [aws.Config] from the environment and shared config
// files, overridden by the given [config.AWSConfig] settings. If a role to
// assume is configured, the returned config uses temporary credentials of
// that role.
func LoadConfig(ctx context.Context, conf config.AWSConfig) (aws.Config, error) {
	opts := []func(o *awsconfig.LoadOptions) error{
		awsconfig.WithRegion(conf.Region),
		awsconfig.WithDefaultRegion(conf.DefaultRegion),
		awsconfig.WithAppID(conf.AppID),
		awsconfig.WithRetryer(func() aws.Retryer {
			return NewRetryer(conf.MaxAttempts, conf.MaxBackoff)
		}),
	}

	awsConf, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}

	if conf.AssumeRole.RoleARN == "" {
		return awsConf, nil
	}

	provider, err := newCredentialsProvider(sts.NewFromConfig(awsConf), conf.AssumeRole)
	if err != nil {
		return aws.Config{}, err
	}
	awsConf.Credentials = aws.NewCredentialsCache(provider)

	return awsConf, nil
}

// NewClientset creates a new [Clientset] from the given [aws.Config].
func NewClientset(cfg aws.Config) *Clientset {
	return &Clientset{
		EC2:             ec2.NewFromConfig(cfg),
		NetworkFirewall: networkfirewall.NewFromConfig(cfg),
		CloudFormation:  cloudformation.NewFromConfig(cfg),
		STS:             sts.NewFromConfig(cfg),
	}
}

// CallerIdentity returns the [Identity] of the credentials used by the
// [Clientset].
func (c *Clientset) CallerIdentity(ctx context.Context) (Identity, error) {
	out, err := c.STS.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return Identity{}, fmt.Errorf("get caller identity: %w", err)
	}

	identity := Identity{
		AccountID: aws.ToString(out.Account),
		ARN:       aws.ToString(out.Arn),
		UserID:    aws.ToString(out.UserId),
	}

	return identity, nil
}
