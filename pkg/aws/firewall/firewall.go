// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package firewall resolves the per availability zone endpoints of an AWS
// Network Firewall.
package firewall

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/networkfirewall"
)

// ErrEndpointNotFound is an error, which is returned when a firewall does not
// provide an endpoint in the requested availability zone.
var ErrEndpointNotFound = errors.New("firewall endpoint not found")

// ErrNoFirewallStatus is an error, which is returned when the firewall
// description does not contain a status.
var ErrNoFirewallStatus = errors.New("firewall status not available")

// API is the subset of the AWS Network Firewall API used by [Resolver].
type API interface {
	DescribeFirewall(ctx context.Context, params *networkfirewall.DescribeFirewallInput, optFns ...func(*networkfirewall.Options)) (*networkfirewall.DescribeFirewallOutput, error)
}

// EndpointMap maps availability zone names to firewall endpoint ids.
type EndpointMap map[string]string

// Endpoint returns the endpoint id for the given availability zone. An error
// wrapping [ErrEndpointNotFound] is returned if the zone is not present.
func (m EndpointMap) Endpoint(az string) (string, error) {
	id, ok := m[az]
	if !ok || id == "" {
		zones := slices.Sorted(maps.Keys(m))
		return "", fmt.Errorf("%w: zone %s (available: %s)", ErrEndpointNotFound, az, strings.Join(zones, ", "))
	}

	return id, nil
}

// Resolver resolves the endpoints of a firewall.
type Resolver struct {
	client API
}

// NewResolver creates a new [Resolver] backed by the given client.
func NewResolver(client API) *Resolver {
	return &Resolver{client: client}
}

// Resolve returns the current [EndpointMap] of the firewall with the given
// ARN. Endpoints may change as the firewall scales, so the result is never
// cached. Zones without an attachment are omitted.
func (r *Resolver) Resolve(ctx context.Context, firewallARN string) (EndpointMap, error) {
	out, err := r.client.DescribeFirewall(ctx, &networkfirewall.DescribeFirewallInput{
		FirewallArn: aws.String(firewallARN),
	})
	if err != nil {
		return nil, fmt.Errorf("describe firewall %s: %w", firewallARN, err)
	}

	if out.FirewallStatus == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoFirewallStatus, firewallARN)
	}

	endpoints := make(EndpointMap, len(out.FirewallStatus.SyncStates))
	for az, state := range out.FirewallStatus.SyncStates {
		if state.Attachment == nil || state.Attachment.EndpointId == nil {
			continue
		}
		endpoints[az] = aws.ToString(state.Attachment.EndpointId)
	}

	return endpoints, nil
}
