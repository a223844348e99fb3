// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package attachment

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/events"

	"github.com/gardener/tgw-inspection/pkg/aws/constants"
)

// ErrUnexpectedEvent is an error, which is returned when the reconciler is
// invoked with an event other than the creation of a TGW VPC attachment.
var ErrUnexpectedEvent = errors.New("unexpected event")

// ErrUnknownRole is an error, which is returned when an attachment is tagged
// with a role other than workload or inspection.
var ErrUnknownRole = errors.New("unknown attachment role")

// Role is the role of the VPC attached to the Transit Gateway.
type Role string

const (
	// RoleWorkload is the role of VPCs running workloads. Their
	// attachments are associated with the workload route table and
	// propagate into the inspection route table.
	RoleWorkload Role = "workload"

	// RoleInspection is the role of the VPC hosting the firewall.
	RoleInspection Role = "inspection"
)

// ParseRole parses the value of a role tag.
func ParseRole(val string) (Role, error) {
	switch Role(val) {
	case RoleWorkload, RoleInspection:
		return Role(val), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, val)
	}
}

// Event is a notification about a newly created TGW VPC attachment.
type Event struct {
	// Name is the name of the CloudTrail event.
	Name string

	// AttachmentID is the id of the created TGW attachment.
	AttachmentID string

	// RoleTag is the raw value of the role tag from the request, if any.
	RoleTag string
}

type tag struct {
	Key   string `json:"Key"`
	Value string `json:"Value"`
}

type tagSpecification struct {
	ResourceType string          `json:"ResourceType"`
	Tag          json.RawMessage `json:"Tag"`
}

// eventDetail is the subset of the CloudTrail record for
// CreateTransitGatewayVpcAttachment used by the reconciler.
type eventDetail struct {
	EventName         string `json:"eventName"`
	RequestParameters struct {
		Request struct {
			TagSpecifications json.RawMessage `json:"TagSpecifications"`
		} `json:"CreateTransitGatewayVpcAttachmentRequest"`
	} `json:"requestParameters"`
	ResponseElements struct {
		Response struct {
			Attachment struct {
				ID string `json:"transitGatewayAttachmentId"`
			} `json:"transitGatewayVpcAttachment"`
		} `json:"CreateTransitGatewayVpcAttachmentResponse"`
	} `json:"responseElements"`
}

// ParseEvent parses the EventBridge event of a CloudTrail record. The event
// must carry the given event name and an attachment id. The role tag is
// looked up by tagKey, though a request with a single tag uses its value
// regardless of the key.
func ParseEvent(raw events.CloudWatchEvent, eventName, tagKey string) (Event, error) {
	if raw.Source != "" && raw.Source != constants.EventSourceEC2 {
		return Event{}, fmt.Errorf("%w: source %q", ErrUnexpectedEvent, raw.Source)
	}

	var detail eventDetail
	if err := json.Unmarshal(raw.Detail, &detail); err != nil {
		return Event{}, fmt.Errorf("%w: cannot decode detail: %w", ErrUnexpectedEvent, err)
	}

	if detail.EventName != eventName {
		return Event{}, fmt.Errorf("%w: event name %q", ErrUnexpectedEvent, detail.EventName)
	}

	event := Event{
		Name:         detail.EventName,
		AttachmentID: detail.ResponseElements.Response.Attachment.ID,
	}
	if event.AttachmentID == "" {
		return Event{}, fmt.Errorf("%w: no attachment id", ErrUnexpectedEvent)
	}

	tags, err := requestTags(detail.RequestParameters.Request.TagSpecifications)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrUnexpectedEvent, err)
	}
	event.RoleTag = roleTag(tags, tagKey)

	return event, nil
}

func requestTags(data json.RawMessage) ([]tag, error) {
	specs, err := oneOrMany[tagSpecification](data)
	if err != nil {
		return nil, fmt.Errorf("cannot decode tag specifications: %w", err)
	}

	tags := make([]tag, 0)
	for _, spec := range specs {
		items, err := oneOrMany[tag](spec.Tag)
		if err != nil {
			return nil, fmt.Errorf("cannot decode tags: %w", err)
		}
		tags = append(tags, items...)
	}

	return tags, nil
}

func roleTag(tags []tag, key string) string {
	for _, t := range tags {
		if t.Key == key {
			return t.Value
		}
	}

	if len(tags) == 1 {
		return tags[0].Value
	}

	return ""
}

// oneOrMany decodes data, which CloudTrail renders either as a single
// object or as a list of objects.
func oneOrMany[T any](data json.RawMessage) ([]T, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}

	if data[0] == '[' {
		var items []T
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, err
		}

		return items, nil
	}

	var item T
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, err
	}

	return []T{item}, nil
}
