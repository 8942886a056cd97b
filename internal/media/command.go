// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// CommandCapturer delegates screenshots to an external program, typically
// a headless browser script that owns its own provider session. The event
// ID is appended to the arguments and the PNG is read from stdout.
type CommandCapturer struct {
	name    string
	args    []string
	timeout time.Duration
}

// NewCommandCapturer parses command into a program and arguments.
func NewCommandCapturer(command string, timeout time.Duration) (*CommandCapturer, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, errors.New("screenshot command is empty")
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &CommandCapturer{name: fields[0], args: fields[1:], timeout: timeout}, nil
}

// Login checks that the program can be found.
func (c *CommandCapturer) Login(context.Context) error {
	if _, err := exec.LookPath(c.name); err != nil {
		return fmt.Errorf("screenshot command: %w", err)
	}
	return nil
}

// Capture runs the program for one event.
func (c *CommandCapturer) Capture(ctx context.Context, eventID int64) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	args := append(append([]string(nil), c.args...), strconv.FormatInt(eventID, 10))
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return nil, fmt.Errorf("screenshot command: %w: %s", err, msg)
	}
	return stdout.Bytes(), nil
}
