// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

package services

import (
	"context"
	"fmt"
)

// StartStopManager is a component whose Start returns after spawning its
// goroutines and whose Stop blocks until they exit.
type StartStopManager interface {
	Start(ctx context.Context) error
	Stop() error
}

// StartStopService supervises a StartStopManager.
type StartStopService struct {
	manager StartStopManager
	name    string
}

// NewStartStopService wraps manager under name.
func NewStartStopService(name string, manager StartStopManager) *StartStopService {
	return &StartStopService{manager: manager, name: name}
}

// Serve implements suture.Service.
func (s *StartStopService) Serve(ctx context.Context) error {
	if err := s.manager.Start(ctx); err != nil {
		return fmt.Errorf("%s start failed: %w", s.name, err)
	}

	<-ctx.Done()

	if err := s.manager.Stop(); err != nil {
		return fmt.Errorf("%s stop failed: %w", s.name, err)
	}
	return ctx.Err()
}

func (s *StartStopService) String() string {
	return s.name
}
