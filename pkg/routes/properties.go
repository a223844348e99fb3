// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package routes

import (
	"errors"
	"fmt"
	"net/netip"
)

// ErrInvalidProperties is an error, which is returned when the resource
// properties of a request are missing or malformed.
var ErrInvalidProperties = errors.New("invalid resource properties")

// Names of the custom resource properties.
const (
	PropertyFirewallArn     = "FirewallArn"
	PropertySubnetAz        = "SubnetAz"
	PropertyDestinationCidr = "DestinationCidr"
	PropertyRouteTableID    = "RouteTableId"
)

// Properties are the resource properties of a firewall route.
type Properties struct {
	// FirewallARN is the ARN of the Network Firewall whose endpoint is
	// the route target.
	FirewallARN string

	// SubnetAZ is the availability zone of the subnet whose route table
	// is being updated.
	SubnetAZ string

	// DestinationCIDR is the destination of the route.
	DestinationCIDR string

	// RouteTableID is the id of the VPC route table.
	RouteTableID string
}

// ParseProperties parses the resource properties of a request. Delete
// requests only need the route table id and destination, so the remaining
// properties are validated by [Properties.ValidateCreate].
func ParseProperties(props map[string]any) (Properties, error) {
	var p Properties
	var err error

	if p.FirewallARN, err = optionalString(props, PropertyFirewallArn); err != nil {
		return p, err
	}
	if p.SubnetAZ, err = optionalString(props, PropertySubnetAz); err != nil {
		return p, err
	}
	if p.DestinationCIDR, err = optionalString(props, PropertyDestinationCidr); err != nil {
		return p, err
	}
	if p.RouteTableID, err = optionalString(props, PropertyRouteTableID); err != nil {
		return p, err
	}

	if p.RouteTableID == "" {
		return p, fmt.Errorf("%w: %s is required", ErrInvalidProperties, PropertyRouteTableID)
	}

	if _, err := netip.ParsePrefix(p.DestinationCIDR); err != nil {
		return p, fmt.Errorf("%w: %s %q: %w", ErrInvalidProperties, PropertyDestinationCidr, p.DestinationCIDR, err)
	}

	return p, nil
}

// ValidateCreate validates the properties required for creating a route.
func (p Properties) ValidateCreate() error {
	if p.FirewallARN == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidProperties, PropertyFirewallArn)
	}

	if p.SubnetAZ == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidProperties, PropertySubnetAz)
	}

	return nil
}

func optionalString(props map[string]any, key string) (string, error) {
	val, ok := props[key]
	if !ok || val == nil {
		return "", nil
	}

	s, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidProperties, key, val)
	}

	return s, nil
}
