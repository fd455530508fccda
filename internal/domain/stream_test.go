package domain

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		name string
		from StreamStatus
		to   StreamStatus
		want bool
	}{
		{"initializing to downloading", StatusInitializing, StatusDownloading, true},
		{"initializing to error", StatusInitializing, StatusError, true},
		{"initializing to ready", StatusInitializing, StatusReady, false},
		{"downloading to converting", StatusDownloading, StatusConverting, true},
		{"downloading to waiting", StatusDownloading, StatusWaitingForData, true},
		{"waiting to converting", StatusWaitingForData, StatusConverting, true},
		{"converting to ready", StatusConverting, StatusReady, true},
		{"converting to waiting", StatusConverting, StatusWaitingForData, true},
		{"ready is terminal", StatusReady, StatusDownloading, false},
		{"ready to error forbidden", StatusReady, StatusError, false},
		{"error is terminal", StatusError, StatusDownloading, false},
		{"error to ready forbidden", StatusError, StatusReady, false},
		{"any to error", StatusConverting, StatusError, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanTransition(tc.from, tc.to); got != tc.want {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
			}
		})
	}
}

func TestStatusActive(t *testing.T) {
	active := []StreamStatus{StatusDownloading, StatusConverting}
	inactive := []StreamStatus{StatusInitializing, StatusWaitingForData, StatusReady, StatusError}

	for _, status := range active {
		if !status.Active() {
			t.Errorf("%s should be active", status)
		}
	}
	for _, status := range inactive {
		if status.Active() {
			t.Errorf("%s should not be active", status)
		}
	}
}

func TestStreamValidate(t *testing.T) {
	valid := Stream{
		ID:        "c0ffee",
		Status:    StatusDownloading,
		Progress:  42,
		CreatedAt: time.Now(),
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid stream rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Stream)
	}{
		{"missing id", func(s *Stream) { s.ID = "" }},
		{"negative progress", func(s *Stream) { s.Progress = -1 }},
		{"progress over 100", func(s *Stream) { s.Progress = 101 }},
		{"missing status", func(s *Stream) { s.Status = "" }},
		{"unknown status", func(s *Stream) { s.Status = "paused" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := valid
			tc.mutate(&s)
			if err := s.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
