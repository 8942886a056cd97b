// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

/*
Package supervisor runs SafetyBot's long-lived components under a suture/v4
supervisor tree.

# Tree Layout

	safetybot (root)
	├── state-layer    bus consumers (export accumulator)
	├── polling-layer  scheduler (poll cycles, health report, daily export)
	└── ops-layer      chat command listener, metrics endpoint

A crash in one layer restarts only that layer's service, with suture's
failure decay and backoff. Events are logged through sutureslog into the
zerolog-backed slog logger.

Service adapters live in the services subpackage.
*/
package supervisor
