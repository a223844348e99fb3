// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package customresource

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/cfn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	urls      []string
	responses []cfn.Response
	err       error
}

func (s *recordingSender) Send(_ context.Context, url string, resp cfn.Response) error {
	s.urls = append(s.urls, url)
	s.responses = append(s.responses, resp)

	return s.err
}

func newEvent() cfn.Event {
	return cfn.Event{
		RequestType:       cfn.RequestCreate,
		RequestID:         "req-1",
		ResponseURL:       "https://cloudformation-custom-resource-response.example/cb",
		LogicalResourceID: "FirewallRoute",
		StackID:           "arn:aws:cloudformation:eu-west-1:123456789012:stack/inspection/1",
	}
}

func TestObligationDischargesOnce(t *testing.T) {
	sender := &recordingSender{}
	ob := NewObligation(newEvent(), sender, WithLogStream("2025/01/01/[$LATEST]abc"))

	assert.False(t, ob.Discharged())

	ob.Succeed(context.Background(), nil)
	ob.Fail(context.Background(), "late failure", nil)

	require.Len(t, sender.responses, 1)
	resp := sender.responses[0]
	assert.Equal(t, cfn.StatusSuccess, resp.Status)
	assert.Equal(t, "req-1", resp.RequestID)
	assert.Equal(t, "FirewallRoute", resp.LogicalResourceID)
	assert.Equal(t, "2025/01/01/[$LATEST]abc", resp.PhysicalResourceID)
	assert.Contains(t, resp.Reason, "2025/01/01/[$LATEST]abc")
	assert.Equal(t, newEvent().ResponseURL, sender.urls[0])
	assert.True(t, ob.Discharged())
}

func TestObligationFailCarriesReason(t *testing.T) {
	sender := &recordingSender{}
	event := newEvent()
	event.PhysicalResourceID = "existing-id"
	ob := NewObligation(event, sender)

	ob.Fail(context.Background(), "create route failed", map[string]any{"Error": "Create route failed for firewall"})

	resp, ok := ob.Response()
	require.True(t, ok)
	assert.Equal(t, cfn.StatusFailed, resp.Status)
	assert.Equal(t, "create route failed", resp.Reason)
	assert.Equal(t, "existing-id", resp.PhysicalResourceID)
	assert.Equal(t, "Create route failed for firewall", resp.Data["Error"])
}

func TestObligationGeneratesPhysicalID(t *testing.T) {
	ob := NewObligation(newEvent(), &recordingSender{})
	ob.Succeed(context.Background(), nil)

	resp, _ := ob.Response()
	assert.NotEmpty(t, resp.PhysicalResourceID)
}

func TestObligationSendFailureIsNotFatal(t *testing.T) {
	sendErr := errors.New("connection reset")
	ob := NewObligation(newEvent(), &recordingSender{err: sendErr})

	ob.Succeed(context.Background(), nil)

	assert.True(t, ob.Discharged())
	assert.ErrorIs(t, ob.Err(), sendErr)
}

func TestObligationRespondsAfterCancellation(t *testing.T) {
	sender := &ctxSender{}
	ob := NewObligation(newEvent(), sender, WithTimeout(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ob.Fail(ctx, "deadline exceeded", nil)

	require.True(t, sender.called)
	assert.NoError(t, sender.ctxErr)
}

type ctxSender struct {
	called bool
	ctxErr error
}

func (s *ctxSender) Send(ctx context.Context, _ string, _ cfn.Response) error {
	s.called = true
	s.ctxErr = ctx.Err()

	return nil
}

func TestHTTPSender(t *testing.T) {
	var (
		method      string
		contentType string
		body        cfn.Response
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		contentType = r.Header.Get("Content-Type")
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := &HTTPSender{Client: server.Client()}
	resp := cfn.Response{
		Status:             cfn.StatusSuccess,
		RequestID:          "req-1",
		LogicalResourceID:  "FirewallRoute",
		StackID:            "stack-1",
		PhysicalResourceID: "id-1",
	}

	require.NoError(t, sender.Send(context.Background(), server.URL, resp))
	assert.Equal(t, http.MethodPut, method)
	assert.Empty(t, contentType)
	assert.Equal(t, cfn.StatusSuccess, body.Status)
	assert.Equal(t, "req-1", body.RequestID)
}

func TestHTTPSenderUnexpectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	sender := &HTTPSender{Client: server.Client()}
	err := sender.Send(context.Background(), server.URL, cfn.Response{Status: cfn.StatusFailed})
	require.ErrorIs(t, err, ErrUnexpectedStatus)
}
