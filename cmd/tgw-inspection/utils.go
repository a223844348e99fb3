// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/urfave/cli/v2"

	"github.com/gardener/tgw-inspection/pkg/core/config"
	"github.com/gardener/tgw-inspection/pkg/metrics"
	slogutils "github.com/gardener/tgw-inspection/pkg/utils/slog"
)

// pushTimeout is the max time spent pushing metrics after an invocation.
const pushTimeout = 5 * time.Second

// configKey is the key used to store the parsed configuration in the context
type configKey struct{}

// getConfig extracts and returns the [config.Config] from app context.
func getConfig(ctx *cli.Context) *config.Config {
	conf, ok := ctx.Context.Value(configKey{}).(*config.Config)
	if !ok {
		slog.Error("configuration not found in context")
		os.Exit(1)
	}

	return conf
}

// errorOutcome derives the outcome from the returned error only.
func errorOutcome[Out any](_ Out, err error) string {
	return metrics.OutcomeOf(err)
}

// instrument wraps the handler of an invocation. The wrapped handler runs
// with a logger carrying the Lambda request id and records the metrics of
// the invocation, using outcome to derive the outcome label from the result.
func instrument[In, Out any](conf *config.Config, name string, handler func(context.Context, In) (Out, error), outcome func(Out, error) string) func(context.Context, In) (Out, error) {
	return func(ctx context.Context, in In) (Out, error) {
		logger := slog.Default().With("handler", name)
		if lc, ok := lambdacontext.FromContext(ctx); ok {
			logger = logger.With("aws_request_id", lc.AwsRequestID)
		}
		ctx = slogutils.WithLogger(ctx, logger)

		start := time.Now()
		out, err := handler(ctx, in)
		elapsed := time.Since(start)
		result := outcome(out, err)
		metrics.ObserveInvocation(name, result, elapsed)

		if err != nil {
			logger.Error("invocation failed", "reason", err, "duration", elapsed)
		} else {
			logger.Info("invocation completed", "outcome", result, "duration", elapsed)
		}

		pushMetrics(ctx, conf)

		return out, err
	}
}

// pushMetrics pushes the collected metrics, if a Pushgateway is configured.
// Failures are logged only.
func pushMetrics(ctx context.Context, conf *config.Config) {
	if conf.Metrics.PushgatewayURL == "" {
		return
	}

	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
	defer cancel()

	if err := metrics.Push(pushCtx, conf.Metrics.PushgatewayURL, conf.Metrics.Job); err != nil {
		slogutils.FromContext(ctx).Warn("cannot push metrics", "url", conf.Metrics.PushgatewayURL, "reason", err)
	}
}

// readEventFile decodes the JSON event from the given path.
func readEventFile(path string, event any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, event); err != nil {
		return fmt.Errorf("cannot decode event from %s: %w", path, err)
	}

	return nil
}

// printJSON prints the given value as indented JSON to stdout.
func printJSON(val any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(val)
}
