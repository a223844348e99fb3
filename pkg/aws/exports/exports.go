// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package exports resolves well-known CloudFormation export names, such as
// the ids of the Transit Gateway route tables, to their values.
package exports

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"

	"github.com/gardener/tgw-inspection/pkg/aws/utils"
)

// ErrExportNotFound is an error, which is returned when a requested export
// does not exist.
var ErrExportNotFound = errors.New("export not found")

// Directory resolves export names to values by scanning the exports of the
// account and region of the client. Values are not cached.
type Directory struct {
	client cloudformation.ListExportsAPIClient
}

// New creates a new [Directory] backed by the given client.
func New(client cloudformation.ListExportsAPIClient) *Directory {
	return &Directory{client: client}
}

// Lookup returns the values of the given export names. An error wrapping
// [ErrExportNotFound] is returned if any of the names is not exported.
func (d *Directory) Lookup(ctx context.Context, names ...string) (map[string]string, error) {
	paginator := cloudformation.NewListExportsPaginator(d.client, &cloudformation.ListExportsInput{})
	items, err := utils.CollectPages(
		ctx,
		paginator.HasMorePages,
		func(ctx context.Context) (*cloudformation.ListExportsOutput, error) {
			return paginator.NextPage(ctx)
		},
		func(out *cloudformation.ListExportsOutput) []types.Export {
			return out.Exports
		},
	)
	if err != nil {
		return nil, fmt.Errorf("list exports: %w", err)
	}

	wanted := make(map[string]struct{}, len(names))
	for _, name := range names {
		wanted[name] = struct{}{}
	}

	result := make(map[string]string, len(names))
	for _, item := range items {
		name := aws.ToString(item.Name)
		if _, ok := wanted[name]; ok {
			result[name] = aws.ToString(item.Value)
		}
	}

	missing := make([]string, 0)
	for _, name := range names {
		if result[name] == "" {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrExportNotFound, strings.Join(missing, ", "))
	}

	return result, nil
}

// RouteTableID returns the route table id exported under the given name.
func (d *Directory) RouteTableID(ctx context.Context, name string) (string, error) {
	values, err := d.Lookup(ctx, name)
	if err != nil {
		return "", err
	}

	return values[name], nil
}
