// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package routes

import (
	"context"
	"net/http"
	"sync"

	"github.com/aws/aws-lambda-go/cfn"
	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/gardener/tgw-inspection/pkg/aws/firewall"
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

type routeKey struct {
	routeTableID string
	destination  string
}

// fakeEC2 keeps VPC routes in memory and mimics the error codes of the EC2
// API.
type fakeEC2 struct {
	mu        sync.Mutex
	routes    map[routeKey]string
	createErr error
	deleteErr error
	replaced  int
}

func newFakeEC2() *fakeEC2 {
	return &fakeEC2{routes: make(map[routeKey]string)}
}

func (f *fakeEC2) CreateRoute(_ context.Context, in *ec2.CreateRouteInput, _ ...func(*ec2.Options)) (*ec2.CreateRouteOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil {
		return nil, f.createErr
	}

	key := routeKey{aws.ToString(in.RouteTableId), aws.ToString(in.DestinationCidrBlock)}
	if _, ok := f.routes[key]; ok {
		return nil, ec2Error("CreateRoute", "RouteAlreadyExists", 400)
	}
	f.routes[key] = aws.ToString(in.VpcEndpointId)

	return &ec2.CreateRouteOutput{Return: aws.Bool(true)}, nil
}

func (f *fakeEC2) ReplaceRoute(_ context.Context, in *ec2.ReplaceRouteInput, _ ...func(*ec2.Options)) (*ec2.ReplaceRouteOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := routeKey{aws.ToString(in.RouteTableId), aws.ToString(in.DestinationCidrBlock)}
	if _, ok := f.routes[key]; !ok {
		return nil, ec2Error("ReplaceRoute", "InvalidRoute.NotFound", 400)
	}
	f.routes[key] = aws.ToString(in.VpcEndpointId)
	f.replaced++

	return &ec2.ReplaceRouteOutput{}, nil
}

func (f *fakeEC2) DeleteRoute(_ context.Context, in *ec2.DeleteRouteInput, _ ...func(*ec2.Options)) (*ec2.DeleteRouteOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.deleteErr != nil {
		return nil, f.deleteErr
	}

	key := routeKey{aws.ToString(in.RouteTableId), aws.ToString(in.DestinationCidrBlock)}
	if _, ok := f.routes[key]; !ok {
		return nil, ec2Error("DeleteRoute", "InvalidRoute.NotFound", 400)
	}
	delete(f.routes, key)

	return &ec2.DeleteRouteOutput{}, nil
}

func (f *fakeEC2) route(routeTableID, destination string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	target, ok := f.routes[routeKey{routeTableID, destination}]

	return target, ok
}

type fakeResolver struct {
	endpoints firewall.EndpointMap
	err       error
}

func (f *fakeResolver) Resolve(_ context.Context, _ string) (firewall.EndpointMap, error) {
	return f.endpoints, f.err
}

type recordingSender struct {
	mu        sync.Mutex
	responses []cfn.Response
}

func (s *recordingSender) Send(_ context.Context, _ string, resp cfn.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, resp)

	return nil
}

func (s *recordingSender) last() cfn.Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.responses[len(s.responses)-1]
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.responses)
}
