// Copyright 2026 The Deltaforge Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the
// Deltaforge daemon.
//
// Configuration is loaded from a single file specified by either the
// DELTAFORGE_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There are no fallbacks, no ~/.config
// discovery, and no automatic file search. This ensures
// deterministic, auditable configuration with no hidden overrides.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${DELTAFORGE_ROOT}, and ${VAR:-default} patterns are
// expanded. No other environment variables override config values.
//
// This package depends on no other Deltaforge packages.
package config
