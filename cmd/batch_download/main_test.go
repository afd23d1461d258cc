package main

import (
	"testing"

	"github.com/italolelis/ytmusic_downloader/internal/track"
	"github.com/stretchr/testify/assert"
)

func TestProgressMessage(t *testing.T) {
	tests := []struct {
		name string
		ev   track.ProgressEvent
		want string
	}{
		{
			name: "first track",
			ev:   track.ProgressEvent{Index: 0, Status: track.StatusDownloaded, Remaining: 2},
			want: "1 downloaded, 2 remaining",
		},
		{
			name: "last track failed",
			ev:   track.ProgressEvent{Index: 2, Status: track.StatusError, Remaining: 0},
			want: "3 error, 0 remaining",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, progressMessage(tt.ev))
		})
	}
}
