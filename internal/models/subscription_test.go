package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEffectiveStatus(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	day := 24 * time.Hour

	tests := []struct {
		name string
		sub  Subscription
		want SubscriptionStatus
	}{
		{
			name: "before window",
			sub:  Subscription{IsActive: true, StartDate: now.Add(day), EndDate: now.Add(10 * day)},
			want: StatusPending,
		},
		{
			name: "inside window",
			sub:  Subscription{IsActive: true, StartDate: now.Add(-day), EndDate: now.Add(day)},
			want: StatusActive,
		},
		{
			name: "past end date",
			sub:  Subscription{IsActive: true, StartDate: now.Add(-10 * day), EndDate: now.Add(-day)},
			want: StatusExpired,
		},
		{
			name: "traffic exhausted inside window",
			sub: Subscription{IsActive: true, StartDate: now.Add(-day), EndDate: now.Add(day),
				TrafficLimit: 100, TrafficUsed: 100},
			want: StatusExpired,
		},
		{
			name: "flag cleared inside valid window",
			sub:  Subscription{IsActive: false, StartDate: now.Add(-day), EndDate: now.Add(day)},
			want: StatusCancelled,
		},
		{
			name: "flag cleared but window lapsed reads expired",
			sub:  Subscription{IsActive: false, StartDate: now.Add(-10 * day), EndDate: now.Add(-day)},
			want: StatusExpired,
		},
		{
			name: "unlimited traffic never exhausts",
			sub: Subscription{IsActive: true, StartDate: now.Add(-day), EndDate: now.Add(day),
				TrafficLimit: 0, TrafficUsed: 1 << 50},
			want: StatusActive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sub.EffectiveStatus(now))
		})
	}
}

func TestDaysLeft(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	sub := Subscription{EndDate: now.Add(36 * time.Hour)}
	assert.Equal(t, 1, sub.DaysLeft(now), "partial days round down")

	sub = Subscription{EndDate: now.Add(-time.Hour)}
	assert.Zero(t, sub.DaysLeft(now), "past end date never goes negative")

	sub = Subscription{EndDate: now.Add(30 * 24 * time.Hour)}
	assert.Equal(t, 30, sub.DaysLeft(now))
}

func TestTrafficLeft(t *testing.T) {
	assert.Zero(t, (&Subscription{TrafficLimit: 0, TrafficUsed: 500}).TrafficLeft())
	assert.Equal(t, int64(40), (&Subscription{TrafficLimit: 100, TrafficUsed: 60}).TrafficLeft())
	assert.Zero(t, (&Subscription{TrafficLimit: 100, TrafficUsed: 150}).TrafficLeft())
}
