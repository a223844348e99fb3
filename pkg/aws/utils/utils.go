// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"context"
	"errors"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
)

// FetchTag returns the value of the AWS tag with the given key or an empty
// string if the tag is not found.
func FetchTag(tags []types.Tag, key string) string {
	for _, t := range tags {
		if t.Key == nil || t.Value == nil {
			continue
		}
		if *t.Key == key {
			return *t.Value
		}
	}

	return ""
}

// IsClientFault returns true if the given error is an AWS API error caused by
// the caller, e.g. invalid parameters, missing permissions or a request for
// a non-existing resource.
//
// Modeled errors carry their fault. Query protocol services such as EC2
// never set it, so their errors are classified by the 4xx status of the
// response instead. Throttling is not a client fault.
func IsClientFault(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}

	switch apiErr.ErrorFault() {
	case smithy.FaultClient:
		return true
	case smithy.FaultServer:
		return false
	}

	if _, ok := retry.DefaultThrottleErrorCodes[apiErr.ErrorCode()]; ok {
		return false
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		status := respErr.HTTPStatusCode()
		return status >= 400 && status < 500
	}

	return false
}

// HasErrorCode returns true if the given error is an AWS API error with any
// of the given error codes.
func HasErrorCode(err error, codes ...string) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return slices.Contains(codes, apiErr.ErrorCode())
	}

	return false
}

// CollectPages fetches all pages of a paginated API call and returns the
// items extracted from each page.
func CollectPages[Output any, Item any](
	ctx context.Context,
	hasMore func() bool,
	nextPage func(context.Context) (Output, error),
	extract func(Output) []Item,
) ([]Item, error) {
	items := make([]Item, 0)
	for hasMore() {
		page, err := nextPage(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, extract(page)...)
	}

	return items, nil
}
