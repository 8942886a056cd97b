// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

// Package services adapts SafetyBot components to suture.Service.
//
//   - StartStopService: components with Start(ctx)/Stop() (the scheduler)
//   - RunService: blocking Run(ctx) loops (command listener, bus consumers)
//   - HTTPServerService: the optional metrics endpoint
//
// Every adapter returns ctx.Err() on a clean shutdown so suture does not
// count it as a failure.
package services
