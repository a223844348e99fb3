// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package attachment implements the reconciler, which associates Transit
// Gateway VPC attachments with the route table derived from their role.
package attachment

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/gardener/tgw-inspection/pkg/aws/constants"
	"github.com/gardener/tgw-inspection/pkg/aws/utils"
	"github.com/gardener/tgw-inspection/pkg/core/config"
	slogutils "github.com/gardener/tgw-inspection/pkg/utils/slog"
)

// HandlerName is the name of the reconciler used in logs and metrics.
const HandlerName = "attachment"

// ErrAttachmentNotFound is an error, which is returned when the attachment
// from the event does not exist.
var ErrAttachmentNotFound = errors.New("attachment not found")

// ErrDisassociationTimedOut is an error, which is returned when an attachment
// did not become unassociated within the configured backoff.
var ErrDisassociationTimedOut = errors.New("timed out waiting for disassociation")

// ErrAttachmentPendingTimedOut is an error, which is returned when a newly
// created attachment did not leave the pending state within the configured
// backoff.
var ErrAttachmentPendingTimedOut = errors.New("timed out waiting for pending attachment")

// Outcome is the terminal outcome of a reconciliation.
type Outcome string

const (
	// OutcomeAssociated means the attachment has been associated with
	// the target route table.
	OutcomeAssociated Outcome = "associated"

	// OutcomeAlreadyAssociated means the attachment was already
	// associated with the target route table.
	OutcomeAlreadyAssociated Outcome = "already_associated"

	// OutcomeTimedOut means the attachment did not reach the state
	// required for association in time.
	OutcomeTimedOut Outcome = "timed_out"
)

// EC2API is the subset of the EC2 API used by [Reconciler].
type EC2API interface {
	DescribeTransitGatewayAttachments(ctx context.Context, params *ec2.DescribeTransitGatewayAttachmentsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeTransitGatewayAttachmentsOutput, error)
	AssociateTransitGatewayRouteTable(ctx context.Context, params *ec2.AssociateTransitGatewayRouteTableInput, optFns ...func(*ec2.Options)) (*ec2.AssociateTransitGatewayRouteTableOutput, error)
	DisassociateTransitGatewayRouteTable(ctx context.Context, params *ec2.DisassociateTransitGatewayRouteTableInput, optFns ...func(*ec2.Options)) (*ec2.DisassociateTransitGatewayRouteTableOutput, error)
	EnableTransitGatewayRouteTablePropagation(ctx context.Context, params *ec2.EnableTransitGatewayRouteTablePropagationInput, optFns ...func(*ec2.Options)) (*ec2.EnableTransitGatewayRouteTablePropagationOutput, error)
}

// RouteTableDirectory resolves route table ids by their export name.
type RouteTableDirectory interface {
	Lookup(ctx context.Context, names ...string) (map[string]string, error)
}

// Result describes a completed reconciliation.
type Result struct {
	// Role is the role of the attachment.
	Role Role

	// AttachmentID is the id of the reconciled attachment.
	AttachmentID string

	// RouteTableID is the id of the target route table.
	RouteTableID string

	// PreviousRouteTableID is the id of the route table the attachment
	// was associated with before, if any.
	PreviousRouteTableID string

	// Outcome is the terminal outcome of the reconciliation.
	Outcome Outcome

	// PropagationEnabled is set when propagation into the inspection
	// route table has been enabled.
	PropagationEnabled bool
}

// Reconciler associates TGW attachments with the route table of their role.
type Reconciler struct {
	ec2       EC2API
	directory RouteTableDirectory
	conf      config.AttachmentConfig
}

// New creates a new [Reconciler].
func New(client EC2API, directory RouteTableDirectory, conf config.AttachmentConfig) *Reconciler {
	r := &Reconciler{
		ec2:       client,
		directory: directory,
		conf:      conf,
	}

	return r
}

// NewBackoff returns the [wait.Backoff] for the given settings.
func NewBackoff(conf config.BackoffConfig) wait.Backoff {
	return wait.Backoff{
		Duration: conf.Initial,
		Factor:   conf.Factor,
		Jitter:   conf.Jitter,
		Steps:    conf.Steps,
		Cap:      conf.Cap,
	}
}

// Handle parses the EventBridge event and reconciles the attachment it
// refers to. Events other than the configured attachment creation are
// rejected with [ErrUnexpectedEvent].
func (r *Reconciler) Handle(ctx context.Context, raw events.CloudWatchEvent) (Result, error) {
	event, err := ParseEvent(raw, r.conf.EventName, r.conf.TagKey)
	if err != nil {
		return Result{}, err
	}

	return r.Reconcile(ctx, event)
}

// Reconcile associates the attachment from the event with the route table
// derived from its role, and enables propagation into the inspection route
// table for workload attachments.
//
// Reconcile is safe to re-run from any partially applied state. An
// attachment which is associated elsewhere is disassociated first, and the
// association is only issued after the attachment has been observed as
// unassociated.
func (r *Reconciler) Reconcile(ctx context.Context, event Event) (Result, error) {
	logger := slogutils.FromContext(ctx).With("attachment_id", event.AttachmentID)
	ctx = slogutils.WithLogger(ctx, logger)
	result := Result{AttachmentID: event.AttachmentID}

	// Fail before any API call for a role we cannot map
	if event.RoleTag != "" {
		role, err := ParseRole(event.RoleTag)
		if err != nil {
			return result, err
		}
		result.Role = role
	}

	var (
		routeTables map[string]string
		att         types.TransitGatewayAttachment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ids, err := r.directory.Lookup(gctx, r.conf.Exports.Workload, r.conf.Exports.Inspection)
		if err != nil {
			return fmt.Errorf("resolve route tables: %w", err)
		}
		routeTables = ids

		return nil
	})
	g.Go(func() error {
		var err error
		att, err = r.describe(gctx, event.AttachmentID)

		return err
	})
	if err := g.Wait(); err != nil {
		return result, err
	}

	if result.Role == "" {
		// The request carried no tags, use the ones of the attachment
		role, err := ParseRole(utils.FetchTag(att.Tags, r.conf.TagKey))
		if err != nil {
			return result, err
		}
		result.Role = role
	}
	logger = logger.With("role", result.Role)
	ctx = slogutils.WithLogger(ctx, logger)

	inspectionID := routeTables[r.conf.Exports.Inspection]
	result.RouteTableID = inspectionID
	if result.Role == RoleWorkload {
		result.RouteTableID = routeTables[r.conf.Exports.Workload]
	}

	if att.State == types.TransitGatewayAttachmentStatePending {
		logger.Info("waiting for pending attachment")
		var err error
		att, err = r.waitFor(ctx, event.AttachmentID, func(a types.TransitGatewayAttachment) bool {
			return a.State != types.TransitGatewayAttachmentStatePending
		})
		if err != nil {
			return r.timedOut(ctx, result, err, ErrAttachmentPendingTimedOut)
		}
	}

	outcome, err := r.associate(ctx, att, &result)
	if err != nil {
		return r.timedOut(ctx, result, err, ErrDisassociationTimedOut)
	}
	result.Outcome = outcome

	if result.Role == RoleWorkload {
		if err := r.enablePropagation(ctx, event.AttachmentID, inspectionID); err != nil {
			return result, err
		}
		result.PropagationEnabled = true
	}

	logger.Info(
		"attachment reconciled",
		"route_table_id", result.RouteTableID,
		"previous_route_table_id", result.PreviousRouteTableID,
		"outcome", result.Outcome,
		"propagation_enabled", result.PropagationEnabled,
	)

	return result, nil
}

// associate converges the association of the attachment to the target route
// table of the result.
func (r *Reconciler) associate(ctx context.Context, att types.TransitGatewayAttachment, result *Result) (Outcome, error) {
	logger := slogutils.FromContext(ctx)
	attachmentID := result.AttachmentID

	if assoc := activeAssociation(att); assoc != nil {
		current := aws.ToString(assoc.TransitGatewayRouteTableId)
		if current == result.RouteTableID && assoc.State != types.TransitGatewayAssociationStateDisassociating {
			logger.Info("attachment already associated", "route_table_id", current, "state", assoc.State)
			return OutcomeAlreadyAssociated, nil
		}

		result.PreviousRouteTableID = current
		if err := r.disassociate(ctx, attachmentID, assoc); err != nil {
			return "", err
		}
	}

	logger.Info("associating attachment", "route_table_id", result.RouteTableID)
	_, err := r.ec2.AssociateTransitGatewayRouteTable(ctx, &ec2.AssociateTransitGatewayRouteTableInput{
		TransitGatewayAttachmentId: aws.String(attachmentID),
		TransitGatewayRouteTableId: aws.String(result.RouteTableID),
	})
	if err != nil {
		return "", fmt.Errorf("associate %s with %s: %w", attachmentID, result.RouteTableID, err)
	}

	return OutcomeAssociated, nil
}

// disassociate removes the given association and waits until the attachment
// is reported as unassociated.
func (r *Reconciler) disassociate(ctx context.Context, attachmentID string, assoc *types.TransitGatewayAttachmentAssociation) error {
	logger := slogutils.FromContext(ctx)
	routeTableID := aws.ToString(assoc.TransitGatewayRouteTableId)

	if assoc.State != types.TransitGatewayAssociationStateDisassociating {
		logger.Info("removing stale association", "route_table_id", routeTableID)
		_, err := r.ec2.DisassociateTransitGatewayRouteTable(ctx, &ec2.DisassociateTransitGatewayRouteTableInput{
			TransitGatewayAttachmentId: aws.String(attachmentID),
			TransitGatewayRouteTableId: aws.String(routeTableID),
		})
		if err != nil && !utils.HasErrorCode(err, constants.ErrCodeAssociationNotFound) {
			return fmt.Errorf("disassociate %s from %s: %w", attachmentID, routeTableID, err)
		}
	}

	logger.Info("waiting for disassociation", "route_table_id", routeTableID)
	_, err := r.waitFor(ctx, attachmentID, func(a types.TransitGatewayAttachment) bool {
		return activeAssociation(a) == nil
	})

	return err
}

func (r *Reconciler) enablePropagation(ctx context.Context, attachmentID, routeTableID string) error {
	logger := slogutils.FromContext(ctx)
	logger.Info("enabling propagation", "route_table_id", routeTableID)

	_, err := r.ec2.EnableTransitGatewayRouteTablePropagation(ctx, &ec2.EnableTransitGatewayRouteTablePropagationInput{
		TransitGatewayAttachmentId: aws.String(attachmentID),
		TransitGatewayRouteTableId: aws.String(routeTableID),
	})
	switch {
	case err == nil:
		return nil
	case utils.HasErrorCode(err, constants.ErrCodePropagationDuplicate):
		logger.Info("propagation already enabled", "route_table_id", routeTableID)
		return nil
	default:
		return fmt.Errorf("enable propagation of %s into %s: %w", attachmentID, routeTableID, err)
	}
}

func (r *Reconciler) describe(ctx context.Context, attachmentID string) (types.TransitGatewayAttachment, error) {
	out, err := r.ec2.DescribeTransitGatewayAttachments(ctx, &ec2.DescribeTransitGatewayAttachmentsInput{
		TransitGatewayAttachmentIds: []string{attachmentID},
	})
	if err != nil {
		return types.TransitGatewayAttachment{}, fmt.Errorf("describe attachment %s: %w", attachmentID, err)
	}

	if len(out.TransitGatewayAttachments) == 0 {
		return types.TransitGatewayAttachment{}, fmt.Errorf("%w: %s", ErrAttachmentNotFound, attachmentID)
	}

	return out.TransitGatewayAttachments[0], nil
}

// exhaustedError is returned by [Reconciler.waitFor] when the backoff ran
// out before the condition was met.
type exhaustedError struct {
	checks int
	err    error
}

func (e *exhaustedError) Error() string {
	return fmt.Sprintf("%s after %d checks", e.err, e.checks)
}

func (e *exhaustedError) Unwrap() error {
	return e.err
}

// waitFor polls the attachment with the configured backoff until done
// reports true. The condition is checked once right away. Exhausting the
// backoff yields an [exhaustedError] carrying the number of checks made.
func (r *Reconciler) waitFor(ctx context.Context, attachmentID string, done func(types.TransitGatewayAttachment) bool) (types.TransitGatewayAttachment, error) {
	logger := slogutils.FromContext(ctx)

	var att types.TransitGatewayAttachment
	checks := 0
	err := wait.ExponentialBackoffWithContext(ctx, NewBackoff(r.conf.Backoff), func(ctx context.Context) (bool, error) {
		checks++
		var err error
		att, err = r.describe(ctx, attachmentID)
		if err != nil {
			return false, err
		}
		ok := done(att)
		if !ok {
			logger.Debug("attachment not ready", "check", checks, "state", att.State)
		}

		return ok, nil
	})
	if err != nil && ctx.Err() == nil && wait.Interrupted(err) {
		return att, &exhaustedError{checks: checks, err: err}
	}

	return att, err
}

// timedOut maps an exhausted backoff to [OutcomeTimedOut] and the given
// sentinel error. Any other error is returned as it is.
func (r *Reconciler) timedOut(ctx context.Context, result Result, err error, sentinel error) (Result, error) {
	var exhausted *exhaustedError
	if !errors.As(err, &exhausted) {
		return result, err
	}

	result.Outcome = OutcomeTimedOut
	slogutils.FromContext(ctx).Warn("attachment reconciliation timed out", "reason", sentinel, "checks", exhausted.checks)

	return result, fmt.Errorf("%w: %s after %d checks", sentinel, result.AttachmentID, exhausted.checks)
}

// activeAssociation returns the association of the attachment, or nil when
// the attachment is unassociated.
func activeAssociation(att types.TransitGatewayAttachment) *types.TransitGatewayAttachmentAssociation {
	if att.Association == nil {
		return nil
	}

	switch att.Association.State {
	case types.TransitGatewayAssociationStateDisassociated, types.TransitGatewayAssociationState(types.AssociationStatusCodeAssociationFailed):
		return nil
	}

	return att.Association
}
