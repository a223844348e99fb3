// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package routes implements the CloudFormation custom resource, which routes
// traffic of a VPC route table to the Network Firewall endpoint residing in
// the same availability zone as the route table's subnet.
package routes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/cfn"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"

	"github.com/gardener/tgw-inspection/pkg/aws/constants"
	"github.com/gardener/tgw-inspection/pkg/aws/firewall"
	"github.com/gardener/tgw-inspection/pkg/aws/utils"
	"github.com/gardener/tgw-inspection/pkg/customresource"
	slogutils "github.com/gardener/tgw-inspection/pkg/utils/slog"
)

// HandlerName is the name of the handler used in logs and metrics.
const HandlerName = "routes"

// ErrUnsupportedRequestType is an error, which is returned for custom
// resource requests other than Create, Update and Delete.
var ErrUnsupportedRequestType = errors.New("unsupported request type")

// EC2API is the subset of the EC2 API used by [Handler].
type EC2API interface {
	CreateRoute(ctx context.Context, params *ec2.CreateRouteInput, optFns ...func(*ec2.Options)) (*ec2.CreateRouteOutput, error)
	ReplaceRoute(ctx context.Context, params *ec2.ReplaceRouteInput, optFns ...func(*ec2.Options)) (*ec2.ReplaceRouteOutput, error)
	DeleteRoute(ctx context.Context, params *ec2.DeleteRouteInput, optFns ...func(*ec2.Options)) (*ec2.DeleteRouteOutput, error)
}

// EndpointResolver resolves the endpoints of a Network Firewall.
type EndpointResolver interface {
	Resolve(ctx context.Context, firewallARN string) (firewall.EndpointMap, error)
}

// Handler handles the lifecycle requests of firewall route custom resources.
type Handler struct {
	ec2             EC2API
	resolver        EndpointResolver
	sender          customresource.Sender
	logStream       string
	responseTimeout time.Duration
}

// Option is a function which configures a [Handler].
type Option func(h *Handler)

// WithLogStream configures the log stream name reported in responses.
func WithLogStream(name string) Option {
	return func(h *Handler) {
		h.logStream = name
	}
}

// WithResponseTimeout configures the timeout for delivering responses.
func WithResponseTimeout(timeout time.Duration) Option {
	return func(h *Handler) {
		h.responseTimeout = timeout
	}
}

// New creates a new [Handler].
func New(client EC2API, resolver EndpointResolver, sender customresource.Sender, opts ...Option) *Handler {
	h := &Handler{
		ec2:             client,
		resolver:        resolver,
		sender:          sender,
		responseTimeout: customresource.DefaultTimeout,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Handle handles a single custom resource request. Exactly one response is
// sent for each request, regardless of the outcome, and Handle returns it.
//
// Failures caused by the request itself (client errors reported by the AWS
// API, unresolvable endpoints, invalid properties) are reported as FAILED and
// Handle returns a nil error. Any other error is reported as FAILED as well,
// but is also returned so that the runtime surfaces it.
func (h *Handler) Handle(ctx context.Context, event cfn.Event) (cfn.Response, error) {
	logger := slogutils.FromContext(ctx).With(
		"request_type", event.RequestType,
		"request_id", event.RequestID,
		"logical_resource_id", event.LogicalResourceID,
	)
	ctx = slogutils.WithLogger(ctx, logger)

	obligation := customresource.NewObligation(
		event,
		h.sender,
		customresource.WithLogStream(h.logStream),
		customresource.WithTimeout(h.responseTimeout),
	)
	defer func() {
		if r := recover(); r != nil {
			obligation.Fail(ctx, fmt.Sprintf("unexpected panic: %v", r), failureData(event.RequestType))
			panic(r)
		}
	}()

	logger.Info("handling custom resource request")
	data, err := h.dispatch(ctx, event)
	if err == nil {
		obligation.Succeed(ctx, data)
		resp, _ := obligation.Response()
		return resp, nil
	}

	logger.Error("custom resource request failed", "reason", err)
	obligation.Fail(ctx, err.Error(), failureData(event.RequestType))
	resp, _ := obligation.Response()
	if isReported(err) {
		return resp, nil
	}

	return resp, err
}

func (h *Handler) dispatch(ctx context.Context, event cfn.Event) (map[string]any, error) {
	switch event.RequestType {
	case cfn.RequestCreate:
		props, err := ParseProperties(event.ResourceProperties)
		if err != nil {
			return nil, err
		}
		if err := props.ValidateCreate(); err != nil {
			return nil, err
		}

		return h.create(ctx, props)
	case cfn.RequestUpdate:
		// Drift is not reconciled on update, see DESIGN.md
		slogutils.FromContext(ctx).Info("update requested, nothing to do")
		return nil, nil
	case cfn.RequestDelete:
		props, err := ParseProperties(event.ResourceProperties)
		if err != nil {
			// No route can exist for properties we would have
			// rejected on create.
			slogutils.FromContext(ctx).Warn("ignoring delete with invalid properties", "reason", err)
			return nil, nil
		}

		return nil, h.delete(ctx, props)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedRequestType, event.RequestType)
	}
}

// create routes the destination to the firewall endpoint of the subnet's
// zone. A redelivered request finds the route in place and replaces it, which
// converges to the same state.
func (h *Handler) create(ctx context.Context, props Properties) (map[string]any, error) {
	logger := slogutils.FromContext(ctx)

	endpoints, err := h.resolver.Resolve(ctx, props.FirewallARN)
	if err != nil {
		return nil, err
	}

	endpointID, err := endpoints.Endpoint(props.SubnetAZ)
	if err != nil {
		return nil, err
	}

	logger.Info(
		"creating route",
		"route_table_id", props.RouteTableID,
		"destination_cidr", props.DestinationCIDR,
		"endpoint_id", endpointID,
		"zone", props.SubnetAZ,
	)

	_, err = h.ec2.CreateRoute(ctx, &ec2.CreateRouteInput{
		RouteTableId:         aws.String(props.RouteTableID),
		DestinationCidrBlock: aws.String(props.DestinationCIDR),
		VpcEndpointId:        aws.String(endpointID),
	})
	switch {
	case err == nil:
		// Created
	case utils.HasErrorCode(err, constants.ErrCodeRouteAlreadyExists):
		logger.Info("route already exists, replacing it", "route_table_id", props.RouteTableID)
		_, err = h.ec2.ReplaceRoute(ctx, &ec2.ReplaceRouteInput{
			RouteTableId:         aws.String(props.RouteTableID),
			DestinationCidrBlock: aws.String(props.DestinationCIDR),
			VpcEndpointId:        aws.String(endpointID),
		})
		if err != nil {
			return nil, fmt.Errorf("replace route %s in %s: %w", props.DestinationCIDR, props.RouteTableID, err)
		}
	default:
		return nil, fmt.Errorf("create route %s in %s: %w", props.DestinationCIDR, props.RouteTableID, err)
	}

	data := map[string]any{
		"EndpointId": endpointID,
	}

	return data, nil
}

// delete removes the route. A missing route or route table is not an error,
// since the route may have been deleted by an earlier delivery.
func (h *Handler) delete(ctx context.Context, props Properties) error {
	logger := slogutils.FromContext(ctx)
	logger.Info(
		"deleting route",
		"route_table_id", props.RouteTableID,
		"destination_cidr", props.DestinationCIDR,
	)

	_, err := h.ec2.DeleteRoute(ctx, &ec2.DeleteRouteInput{
		RouteTableId:         aws.String(props.RouteTableID),
		DestinationCidrBlock: aws.String(props.DestinationCIDR),
	})
	if utils.HasErrorCode(err, constants.ErrCodeRouteNotFound, constants.ErrCodeRouteTableNotFound) {
		logger.Info("route does not exist", "route_table_id", props.RouteTableID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete route %s in %s: %w", props.DestinationCIDR, props.RouteTableID, err)
	}

	return nil
}

// isReported returns true for errors caused by the request, which are fully
// handled by a FAILED response.
func isReported(err error) bool {
	switch {
	case utils.IsClientFault(err):
		return true
	case errors.Is(err, firewall.ErrEndpointNotFound),
		errors.Is(err, firewall.ErrNoFirewallStatus),
		errors.Is(err, ErrInvalidProperties),
		errors.Is(err, ErrUnsupportedRequestType):
		return true
	default:
		return false
	}
}

func failureData(requestType cfn.RequestType) map[string]any {
	var msg string
	switch requestType {
	case cfn.RequestCreate:
		msg = "Create route failed for firewall"
	case cfn.RequestDelete:
		msg = "Delete route failed for firewall"
	default:
		msg = fmt.Sprintf("%s request failed for firewall", requestType)
	}

	return map[string]any{"Error": msg}
}
