// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package aws

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/gardener/tgw-inspection/pkg/core/config"
)

func TestNewCredentialsProvider(t *testing.T) {
	client := sts.NewFromConfig(aws.Config{Region: "eu-west-1"})

	_, err := newCredentialsProvider(client, config.AssumeRoleConfig{})
	if !errors.Is(err, ErrNoRoleARN) {
		t.Fatalf("want ErrNoRoleARN, got %v", err)
	}

	provider, err := newCredentialsProvider(client, config.AssumeRoleConfig{
		RoleARN: "arn:aws:iam::123456789012:role/tgw-inspection",
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if _, ok := provider.(*stscreds.AssumeRoleProvider); !ok {
		t.Fatalf("want *stscreds.AssumeRoleProvider, got %T", provider)
	}

	provider, err = newCredentialsProvider(client, config.AssumeRoleConfig{
		RoleARN:              "arn:aws:iam::123456789012:role/tgw-inspection",
		SessionName:          "tgw-inspection",
		WebIdentityTokenFile: "/var/run/secrets/token",
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if _, ok := provider.(*stscreds.WebIdentityRoleProvider); !ok {
		t.Fatalf("want *stscreds.WebIdentityRoleProvider, got %T", provider)
	}
}

func TestTokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("jwt"), 0o600); err != nil {
		t.Fatalf("cannot write token: %s", err)
	}

	token, err := tokenFile(path).GetIdentityToken()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if string(token) != "jwt" {
		t.Fatalf("want token jwt, got %q", token)
	}

	_, err = tokenFile(filepath.Join(t.TempDir(), "missing")).GetIdentityToken()
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("want os.ErrNotExist, got %v", err)
	}
}
