// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package version provides the version of the binary.
package version

// Version is the version of the binary, which is set during build time via
// -ldflags "-X github.com/gardener/tgw-inspection/pkg/version.Version=..."
var Version = "v0.1.0-dev"
