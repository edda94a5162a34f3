package consensus

import (
	"errors"
	"slices"

	"github.com/shruggr/headerchain/models"
)

var (
	ErrTimestampTooOld = errors.New("timestamp is not greater than median of previous 11 timestamps")
	ErrTimestampTooFar = errors.New("timestamp is too far ahead of previous timestamp")
)

// MedianTimePast returns the median of the up to MedianTimeSpan timestamps
// preceding height. History that is unavailable, as below a checkpoint start,
// shortens the window.
func MedianTimePast(height uint64, lookup HeaderLookup) (uint32, error) {
	n := min(uint64(MedianTimeSpan), height)
	timestamps := make([]uint32, 0, n)
	for i := uint64(1); i <= n; i++ {
		h, err := lookup(height - i)
		if errors.Is(err, ErrHeaderUnavailable) {
			break
		}
		if err != nil {
			return 0, err
		}
		timestamps = append(timestamps, h.Timestamp)
	}
	if len(timestamps) == 0 {
		return 0, nil
	}

	slices.Sort(timestamps)
	return timestamps[len(timestamps)/2], nil
}

// CheckTimestamp enforces median-time-past, then the maximum drift relative
// to the parent's timestamp.
func CheckTimestamp(h *models.Header, lookup HeaderLookup, maxDrift uint32) error {
	median, err := MedianTimePast(h.Height, lookup)
	if err != nil {
		return err
	}
	if h.Timestamp <= median {
		return ErrTimestampTooOld
	}

	prev, err := lookup(h.Height - 1)
	if err != nil {
		return err
	}
	if uint64(h.Timestamp) > uint64(prev.Timestamp)+uint64(maxDrift) {
		return ErrTimestampTooFar
	}
	return nil
}
