// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command tree behind bureau-integrations: nested
// [Command] values dispatched by name, pflag flag sets parsed per leaf
// command, structured help output, and typo suggestions for unknown
// commands and flags. It also builds the command logger and writes
// --json output.
package cli
