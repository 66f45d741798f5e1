package notifications

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderReminder(t *testing.T) {
	renderer, err := NewRenderer()
	require.NoError(t, err)

	title, body, err := renderer.RenderReminder(testSubscription())
	require.NoError(t, err)

	assert.Equal(t, "Subscription renewal — Netflix", title)
	assert.Equal(t, "Netflix renews on Mar 1, 2026 (Europe/Berlin) — Monthly plan, 15.99 USD.", body)
}

func TestMessageText(t *testing.T) {
	tests := []struct {
		name       string
		payload    JobPayload
		serviceURL string
		want       string
	}{
		{
			name: "title body and link",
			payload: JobPayload{
				Title: "Subscription renewal — Netflix",
				Body:  "Netflix renews tomorrow.",
			},
			serviceURL: "https://netflix.com",
			want:       "Subscription renewal — Netflix\n\nNetflix renews tomorrow.\n\nLink: https://netflix.com",
		},
		{
			name: "no link",
			payload: JobPayload{
				Title: "Subscription renewal — Netflix",
				Body:  "Netflix renews tomorrow.",
			},
			want: "Subscription renewal — Netflix\n\nNetflix renews tomorrow.",
		},
		{
			name:    "body only",
			payload: JobPayload{Body: "Netflix renews tomorrow."},
			want:    "Netflix renews tomorrow.",
		},
		{
			name: "empty payload falls back",
			want: "Subscription reminder",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MessageText(tt.payload, tt.serviceURL))
		})
	}
}
