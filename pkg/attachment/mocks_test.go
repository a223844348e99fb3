// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package attachment

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/gardener/tgw-inspection/pkg/aws/exports"
)

// ec2Error returns an error shaped like the ones returned by the EC2 query
// protocol, which carry an HTTP status but no fault.
func ec2Error(operation, code string, status int) error {
	return &smithy.OperationError{
		ServiceID:     "EC2",
		OperationName: operation,
		Err: &awshttp.ResponseError{
			ResponseError: &smithyhttp.ResponseError{
				Response: &smithyhttp.Response{Response: &http.Response{StatusCode: status}},
				Err:      &smithy.GenericAPIError{Code: code, Message: code},
			},
			RequestID: "8c6e9d0a-6f44-4f2b-9a5f-1f8e0b7e6a11",
		},
	}
}

// fakeAttachment is the state of a TGW attachment kept by [fakeEC2].
type fakeAttachment struct {
	state        types.TransitGatewayAttachmentState
	association  *types.TransitGatewayAttachmentAssociation
	tags         []types.Tag
	propagations map[string]bool

	// pendingChecks is the number of describe calls after which a
	// pending attachment becomes available.
	pendingChecks int

	// disassociateChecks is the number of describe calls after which a
	// disassociating attachment becomes unassociated.
	disassociateChecks int

	// stuck keeps the attachment disassociating forever.
	stuck bool
}

// fakeEC2 mimics the TGW attachment API of EC2, including the delay of
// disassociations.
type fakeEC2 struct {
	mu          sync.Mutex
	attachments map[string]*fakeAttachment
	calls       []string
}

func newFakeEC2() *fakeEC2 {
	return &fakeEC2{attachments: make(map[string]*fakeAttachment)}
}

func (f *fakeEC2) add(id string, att *fakeAttachment) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if att.state == "" {
		att.state = types.TransitGatewayAttachmentStateAvailable
	}
	if att.propagations == nil {
		att.propagations = make(map[string]bool)
	}
	f.attachments[id] = att
}

// unstick lets a stuck disassociation complete on the next describe.
func (f *fakeEC2) unstick(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.attachments[id].stuck = false
}

func (f *fakeEC2) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeEC2) callCount(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}

	return n
}

func (f *fakeEC2) mutations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	result := make([]string, 0)
	for _, c := range f.calls {
		if c != "describe" {
			result = append(result, c)
		}
	}

	return result
}

// associatedWith returns the route table of the active association.
func (f *fakeEC2) associatedWith(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	att := f.attachments[id]
	if att.association == nil || att.association.State != types.TransitGatewayAssociationStateAssociated {
		return ""
	}

	return aws.ToString(att.association.TransitGatewayRouteTableId)
}

func (f *fakeEC2) propagates(id, routeTableID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.attachments[id].propagations[routeTableID]
}

func (f *fakeEC2) DescribeTransitGatewayAttachments(_ context.Context, in *ec2.DescribeTransitGatewayAttachmentsInput, _ ...func(*ec2.Options)) (*ec2.DescribeTransitGatewayAttachmentsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("describe")

	out := &ec2.DescribeTransitGatewayAttachmentsOutput{}
	for _, id := range in.TransitGatewayAttachmentIds {
		att, ok := f.attachments[id]
		if !ok {
			continue
		}

		if att.state == types.TransitGatewayAttachmentStatePending {
			if att.pendingChecks <= 0 {
				att.state = types.TransitGatewayAttachmentStateAvailable
			}
			att.pendingChecks--
		}

		if att.association != nil && att.association.State == types.TransitGatewayAssociationStateDisassociating && !att.stuck {
			if att.disassociateChecks <= 0 {
				att.association = nil
			}
			att.disassociateChecks--
		}

		item := types.TransitGatewayAttachment{
			TransitGatewayAttachmentId: aws.String(id),
			State:                      att.state,
			Tags:                       att.tags,
		}
		if att.association != nil {
			assoc := *att.association
			item.Association = &assoc
		}
		out.TransitGatewayAttachments = append(out.TransitGatewayAttachments, item)
	}

	return out, nil
}

func (f *fakeEC2) AssociateTransitGatewayRouteTable(_ context.Context, in *ec2.AssociateTransitGatewayRouteTableInput, _ ...func(*ec2.Options)) (*ec2.AssociateTransitGatewayRouteTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("associate")

	att, err := f.lookup(aws.ToString(in.TransitGatewayAttachmentId))
	if err != nil {
		return nil, err
	}

	if att.association != nil {
		return nil, ec2Error("AssociateTransitGatewayRouteTable", "Resource.AlreadyAssociated", 400)
	}

	att.association = &types.TransitGatewayAttachmentAssociation{
		TransitGatewayRouteTableId: in.TransitGatewayRouteTableId,
		State:                      types.TransitGatewayAssociationStateAssociated,
	}

	return &ec2.AssociateTransitGatewayRouteTableOutput{}, nil
}

func (f *fakeEC2) DisassociateTransitGatewayRouteTable(_ context.Context, in *ec2.DisassociateTransitGatewayRouteTableInput, _ ...func(*ec2.Options)) (*ec2.DisassociateTransitGatewayRouteTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("disassociate")

	att, err := f.lookup(aws.ToString(in.TransitGatewayAttachmentId))
	if err != nil {
		return nil, err
	}

	if att.association == nil || aws.ToString(att.association.TransitGatewayRouteTableId) != aws.ToString(in.TransitGatewayRouteTableId) {
		return nil, ec2Error("DisassociateTransitGatewayRouteTable", "InvalidAssociation.NotFound", 400)
	}
	att.association.State = types.TransitGatewayAssociationStateDisassociating

	return &ec2.DisassociateTransitGatewayRouteTableOutput{}, nil
}

func (f *fakeEC2) EnableTransitGatewayRouteTablePropagation(_ context.Context, in *ec2.EnableTransitGatewayRouteTablePropagationInput, _ ...func(*ec2.Options)) (*ec2.EnableTransitGatewayRouteTablePropagationOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("enable_propagation")

	att, err := f.lookup(aws.ToString(in.TransitGatewayAttachmentId))
	if err != nil {
		return nil, err
	}

	routeTableID := aws.ToString(in.TransitGatewayRouteTableId)
	if att.propagations[routeTableID] {
		return nil, ec2Error("EnableTransitGatewayRouteTablePropagation", "TransitGatewayRouteTablePropagation.Duplicate", 400)
	}
	att.propagations[routeTableID] = true

	return &ec2.EnableTransitGatewayRouteTablePropagationOutput{}, nil
}

func (f *fakeEC2) lookup(id string) (*fakeAttachment, error) {
	att, ok := f.attachments[id]
	if !ok {
		return nil, ec2Error("AssociateTransitGatewayRouteTable", "InvalidTransitGatewayAttachmentID.NotFound", 400)
	}

	return att, nil
}

type fakeDirectory struct {
	exports map[string]string
}

func (d *fakeDirectory) Lookup(_ context.Context, names ...string) (map[string]string, error) {
	result := make(map[string]string, len(names))
	for _, name := range names {
		val, ok := d.exports[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", exports.ErrExportNotFound, name)
		}
		result[name] = val
	}

	return result, nil
}
