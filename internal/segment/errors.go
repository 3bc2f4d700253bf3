package segment

import "errors"

var (
	// ErrNotGap is returned by Promote when called on a non-gap segment.
	ErrNotGap = errors.New("segment is not a gap")
	// ErrIsGap is returned by operations that require a backing slot.
	ErrIsGap = errors.New("segment has no backing slot")
)
