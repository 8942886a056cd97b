// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/safetybot/internal/logging"
)

// RunFunc blocks until ctx is canceled or the loop fails.
type RunFunc func(ctx context.Context) error

// RunService supervises a blocking loop.
type RunService struct {
	name      string
	run       RunFunc
	permanent func(error) bool
}

// NewRunService wraps run under name. When permanent reports true for an
// error, the service is not restarted (for example rejected credentials).
func NewRunService(name string, run RunFunc, permanent func(error) bool) *RunService {
	return &RunService{name: name, run: run, permanent: permanent}
}

// Serve implements suture.Service.
func (s *RunService) Serve(ctx context.Context) error {
	err := s.run(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil {
		// A loop that returns on its own while ctx is live is done for good.
		return suture.ErrDoNotRestart
	}
	if s.permanent != nil && s.permanent(err) && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Str("service", s.name).Msg("Service stopped permanently")
		return fmt.Errorf("%s: %w: %w", s.name, suture.ErrDoNotRestart, err)
	}
	return fmt.Errorf("%s: %w", s.name, err)
}

func (s *RunService) String() string {
	return s.name
}
