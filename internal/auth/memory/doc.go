// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 YouChat Contributors

// Package memory provides in-process implementations of the auth
// repositories, for single-node deployments and tests.
package memory
