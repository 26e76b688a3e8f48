package models

import (
	"testing"
	"time"
)

func TestRefreshRecord_IsActive(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name   string
		record RefreshRecord
		want   bool
	}{
		{
			name:   "fresh",
			record: RefreshRecord{ExpiresAt: now.Add(time.Hour)},
			want:   true,
		},
		{
			name:   "revoked",
			record: RefreshRecord{Revoked: true, ExpiresAt: now.Add(time.Hour)},
			want:   false,
		},
		{
			name:   "expires exactly now",
			record: RefreshRecord{ExpiresAt: now},
			want:   false,
		},
		{
			name:   "expired",
			record: RefreshRecord{ExpiresAt: now.Add(-time.Minute)},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.record.IsActive(now); got != tt.want {
				t.Errorf("IsActive() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoginRequest_IsStale(t *testing.T) {
	now := time.Now()
	staleAfter := 30 * time.Minute

	tests := []struct {
		name    string
		request LoginRequest
		want    bool
	}{
		{
			name:    "recent",
			request: LoginRequest{InitiatedAt: now.Add(-time.Minute)},
			want:    false,
		},
		{
			name:    "old",
			request: LoginRequest{InitiatedAt: now.Add(-time.Hour)},
			want:    true,
		},
		{
			name:    "flagged",
			request: LoginRequest{InitiatedAt: now, Stale: true},
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.request.IsStale(now, staleAfter); got != tt.want {
				t.Errorf("IsStale() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoginRequest_IsCompleted(t *testing.T) {
	r := LoginRequest{}
	if r.IsCompleted() {
		t.Error("new request should not be completed")
	}
	now := time.Now()
	r.CompletedAt = &now
	if !r.IsCompleted() {
		t.Error("request with CompletedAt should be completed")
	}
}
