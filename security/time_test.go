package security

import (
	"testing"
	"time"
)

func TestIsExpiredWithGracePeriod(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name      string
		expiresAt time.Time
		grace     time.Duration
		want      bool
	}{
		{
			name:      "future expiry",
			expiresAt: now.Add(time.Hour),
			grace:     5 * time.Second,
			want:      false,
		},
		{
			name:      "long past expiry",
			expiresAt: now.Add(-time.Hour),
			grace:     5 * time.Second,
			want:      true,
		},
		{
			name:      "just expired within grace",
			expiresAt: now.Add(-2 * time.Second),
			grace:     5 * time.Second,
			want:      false,
		},
		{
			name:      "just expired without grace",
			expiresAt: now.Add(-2 * time.Second),
			grace:     0,
			want:      true,
		},
		{
			name:      "zero time never expires",
			expiresAt: time.Time{},
			grace:     5 * time.Second,
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsExpiredWithGracePeriod(tt.expiresAt, tt.grace); got != tt.want {
				t.Errorf("IsExpiredWithGracePeriod() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsExpired_UsesDefaultGrace(t *testing.T) {
	// Expired for less than the default grace period: still accepted.
	if IsExpired(time.Now().Add(-DefaultClockSkewGracePeriod / 2)) {
		t.Error("Token inside the grace window reported expired")
	}
	if !IsExpired(time.Now().Add(-2 * DefaultClockSkewGracePeriod)) {
		t.Error("Token beyond the grace window reported live")
	}
}
