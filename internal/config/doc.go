// Registry Gateway - Business Registration Platform Edge Authentication
// Copyright 2026 OpenRegistry Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openregistry/registry-gateway

// Package config loads and validates gateway configuration.
//
// Configuration is layered with koanf, highest priority last:
//
//  1. Built-in defaults
//  2. An optional YAML config file (CONFIG_PATH or the default search paths)
//  3. GATEWAY_* environment variables
//
// Environment variables map to nested keys through an explicit table rather
// than naming convention alone, so renaming a struct field can never
// silently detach a deployed variable.
//
// Validation runs at load time and refuses to start the gateway on a bad
// configuration; there are no lazily discovered config errors at request
// time. Production mode additionally refuses development conveniences such
// as an empty origin allow set or short anti-forgery keys.
package config
