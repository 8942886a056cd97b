// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

package dedup

import (
	"testing"

	"github.com/tomtom215/safetybot/internal/models"
)

func TestSet(t *testing.T) {
	t.Parallel()

	s := New()
	if s.Seen(models.StreamCrash, 1) {
		t.Fatal("empty set reports id as seen")
	}

	s.Mark(models.StreamCrash, 1)
	if !s.Seen(models.StreamCrash, 1) {
		t.Error("marked id not seen")
	}
	if s.Seen(models.StreamSpeeding, 1) {
		t.Error("same id in another stream must not be seen")
	}

	s.Mark(models.StreamCrash, 1)
	if s.Len() != 1 {
		t.Errorf("expected Len 1 after duplicate mark, got %d", s.Len())
	}

	s.Reset()
	if s.Seen(models.StreamCrash, 1) || s.Len() != 0 {
		t.Error("Reset did not clear the set")
	}
}
