// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package constants

const (
	// EventSourceEC2 is the EventBridge source of CloudTrail events emitted
	// by the EC2 API.
	EventSourceEC2 = "aws.ec2"

	// EventNameCreateVpcAttachment is the CloudTrail event name emitted when
	// a Transit Gateway VPC attachment has been created.
	EventNameCreateVpcAttachment = "CreateTransitGatewayVpcAttachment"

	// RouteTableTagKey is the key of the attachment tag, which carries the
	// role of the attached VPC.
	RouteTableTagKey = "routeTable"

	// WorkloadRouteTableExport is the name of the CloudFormation export,
	// which provides the id of the workload TGW route table.
	WorkloadRouteTableExport = "WorkloadRouteTableId"

	// InspectionRouteTableExport is the name of the CloudFormation export,
	// which provides the id of the inspection TGW route table.
	InspectionRouteTableExport = "InspectionRouteTableId"
)

// Error codes returned by the EC2 API, which are relevant for idempotent
// handling of route and propagation mutations.
const (
	ErrCodeRouteNotFound        = "InvalidRoute.NotFound"
	ErrCodeRouteTableNotFound   = "InvalidRouteTableID.NotFound"
	ErrCodeRouteAlreadyExists   = "RouteAlreadyExists"
	ErrCodePropagationDuplicate = "TransitGatewayRouteTablePropagation.Duplicate"
	ErrCodeAssociationNotFound  = "InvalidAssociation.NotFound"
)
