package proc

import (
	"time"

	"github.com/samber/lo"
)

// Track is a resolved, playable entry. It is never modified after resolution.
type Track struct {
	Source     string // stream reference handed to the caller, usually a time-limited URL
	Title      string
	Query      string // what the user asked for
	WebpageURL string
	Duration   time.Duration
}

// Queue is a chat's playback order. The head is the track currently playing.
// It is not safe for concurrent use; Session serializes access.
type Queue struct {
	tracks []Track
}

func (q *Queue) Push(t Track) int {
	q.tracks = append(q.tracks, t)
	return len(q.tracks)
}

// Pop removes the head and reports whether there was one.
func (q *Queue) Pop() (Track, bool) {
	if len(q.tracks) == 0 {
		return Track{}, false
	}
	head := q.tracks[0]
	q.tracks[0] = Track{}
	q.tracks = q.tracks[1:]
	if len(q.tracks) == 0 {
		q.tracks = nil
	}
	return head, true
}

func (q *Queue) Head() (Track, bool) {
	if len(q.tracks) == 0 {
		return Track{}, false
	}
	return q.tracks[0], true
}

func (q *Queue) Len() int {
	return len(q.tracks)
}

func (q *Queue) Clear() {
	q.tracks = nil
}

// Tracks returns a copy of the queue in playback order.
func (q *Queue) Tracks() []Track {
	return append([]Track(nil), q.tracks...)
}

func (q *Queue) Titles() []string {
	return lo.Map(q.tracks, func(t Track, _ int) string { return t.Title })
}
