// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package aws

import (
	"errors"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/gardener/tgw-inspection/pkg/core/config"
)

// ErrNoRoleARN is an error, which is returned when creating a credentials
// provider without specifying an IAM Role ARN to be assumed.
var ErrNoRoleARN = errors.New("no IAM Role ARN specified")

// tokenFile retrieves an identity token from a given path. The file is read
// on each retrieval, since the token is rotated by its issuer.
type tokenFile string

var _ stscreds.IdentityTokenRetriever = tokenFile("")

// GetIdentityToken implements the [stscreds.IdentityTokenRetriever] interface.
func (t tokenFile) GetIdentityToken() ([]byte, error) {
	return os.ReadFile(string(t))
}

// newCredentialsProvider returns the provider for the role configured in
// the given [config.AssumeRoleConfig]. The role is assumed with the web
// identity token if one is configured, and with the credentials of the
// client otherwise.
func newCredentialsProvider(client *sts.Client, conf config.AssumeRoleConfig) (aws.CredentialsProvider, error) {
	if conf.RoleARN == "" {
		return nil, ErrNoRoleARN
	}

	if conf.WebIdentityTokenFile != "" {
		provider := stscreds.NewWebIdentityRoleProvider(
			client,
			conf.RoleARN,
			tokenFile(conf.WebIdentityTokenFile),
			func(o *stscreds.WebIdentityRoleOptions) {
				o.RoleSessionName = conf.SessionName
				o.Duration = conf.Duration
			},
		)

		return provider, nil
	}

	provider := stscreds.NewAssumeRoleProvider(
		client,
		conf.RoleARN,
		func(o *stscreds.AssumeRoleOptions) {
			if conf.SessionName != "" {
				o.RoleSessionName = conf.SessionName
			}
			if conf.Duration > 0 {
				o.Duration = conf.Duration
			}
		},
	)

	return provider, nil
}
