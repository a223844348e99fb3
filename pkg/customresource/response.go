// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package customresource implements the response side of the CloudFormation
// custom resource protocol. CloudFormation blocks until it receives exactly
// one response for each request, so every request is paired with an
// [Obligation], which must be discharged exactly once.
package customresource

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-lambda-go/cfn"
	"github.com/google/uuid"

	"github.com/gardener/tgw-inspection/pkg/metrics"
	slogutils "github.com/gardener/tgw-inspection/pkg/utils/slog"
)

// ErrUnexpectedStatus is an error, which is returned when the response URL
// replies with a non-successful HTTP status.
var ErrUnexpectedStatus = errors.New("unexpected response status")

// DefaultTimeout is the default timeout for delivering a response.
const DefaultTimeout = 10 * time.Second

// Sender delivers a custom resource response to the pre-signed response URL.
type Sender interface {
	Send(ctx context.Context, url string, resp cfn.Response) error
}

// HTTPSender is a [Sender], which delivers responses with a single HTTP PUT
// request.
type HTTPSender struct {
	// Client is the HTTP client to use. [http.DefaultClient] is used if
	// nil.
	Client *http.Client
}

var _ Sender = &HTTPSender{}

// Send implements the [Sender] interface.
func (s *HTTPSender) Send(ctx context.Context, url string, resp cfn.Response) error {
	body, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}

	// The pre-signed S3 URL is signed without a content type.
	req.Header.Set("Content-Type", "")
	req.Header.Set("Content-Length", strconv.Itoa(len(body)))
	req.ContentLength = int64(len(body))

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	httpResp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()
	_, _ = io.Copy(io.Discard, httpResp.Body)

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return fmt.Errorf("%w: %s", ErrUnexpectedStatus, httpResp.Status)
	}

	return nil
}

// Obligation represents the duty to respond to a single custom resource
// request. The first call to [Obligation.Succeed] or [Obligation.Fail]
// discharges it, any further calls are ignored.
type Obligation struct {
	mu         sync.Mutex
	event      cfn.Event
	sender     Sender
	logStream  string
	timeout    time.Duration
	discharged bool
	response   cfn.Response
	sendErr    error
}

// Option is a function which configures an [Obligation].
type Option func(o *Obligation)

// WithLogStream configures the name of the log stream of the invocation. It
// is referenced in the response reason and used as the physical resource id
// of newly created resources.
func WithLogStream(name string) Option {
	return func(o *Obligation) {
		o.logStream = name
	}
}

// WithTimeout configures the timeout for delivering the response.
func WithTimeout(timeout time.Duration) Option {
	return func(o *Obligation) {
		o.timeout = timeout
	}
}

// NewObligation creates a new [Obligation] for the given request.
func NewObligation(event cfn.Event, sender Sender, opts ...Option) *Obligation {
	o := &Obligation{
		event:   event,
		sender:  sender,
		timeout: DefaultTimeout,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Succeed discharges the obligation with a SUCCESS response carrying the
// given data.
func (o *Obligation) Succeed(ctx context.Context, data map[string]any) {
	o.discharge(ctx, cfn.StatusSuccess, "", data)
}

// Fail discharges the obligation with a FAILED response carrying the given
// reason and data.
func (o *Obligation) Fail(ctx context.Context, reason string, data map[string]any) {
	o.discharge(ctx, cfn.StatusFailed, reason, data)
}

// Discharged returns true if a response has already been sent or attempted.
func (o *Obligation) Discharged() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.discharged
}

// Response returns the response the obligation was discharged with, and a
// boolean indicating whether it has been discharged.
func (o *Obligation) Response() (cfn.Response, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.response, o.discharged
}

// Err returns the error encountered while delivering the response, if any.
func (o *Obligation) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.sendErr
}

func (o *Obligation) discharge(ctx context.Context, status cfn.StatusType, reason string, data map[string]any) {
	logger := slogutils.FromContext(ctx)

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.discharged {
		logger.Warn(
			"custom resource response already sent",
			"status", status,
			"previous_status", o.response.Status,
		)
		return
	}
	o.discharged = true
	o.response = o.newResponse(status, reason, data)

	logger.Info(
		"sending custom resource response",
		"status", o.response.Status,
		"reason", o.response.Reason,
		"physical_resource_id", o.response.PhysicalResourceID,
	)

	// The response is owed even if the invocation context is already
	// cancelled or past its deadline.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeout)
	defer cancel()

	// Delivery failures are not fatal for the invocation, CloudFormation
	// will eventually time out waiting for the response.
	if err := o.sender.Send(sendCtx, o.event.ResponseURL, o.response); err != nil {
		o.sendErr = err
		metrics.CallbackFailuresTotal.Inc()
		logger.Warn("failed to send custom resource response", "reason", err)
		return
	}

	logger.Info("custom resource response sent", "status", o.response.Status)
}

func (o *Obligation) newResponse(status cfn.StatusType, reason string, data map[string]any) cfn.Response {
	if o.logStream != "" {
		details := fmt.Sprintf("See details in CloudWatch Log Stream: %s", o.logStream)
		if reason == "" {
			reason = details
		} else {
			reason = reason + ". " + details
		}
	}

	if data == nil {
		data = map[string]any{}
	}

	return cfn.Response{
		Status:             status,
		RequestID:          o.event.RequestID,
		LogicalResourceID:  o.event.LogicalResourceID,
		StackID:            o.event.StackID,
		PhysicalResourceID: o.physicalResourceID(),
		Reason:             reason,
		Data:               data,
	}
}

// physicalResourceID keeps the id of existing resources, so that updates and
// deletes do not cause CloudFormation to treat the resource as replaced.
func (o *Obligation) physicalResourceID() string {
	switch {
	case o.event.PhysicalResourceID != "":
		return o.event.PhysicalResourceID
	case o.logStream != "":
		return o.logStream
	default:
		return uuid.NewString()
	}
}
