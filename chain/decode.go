package chain

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shruggr/headerchain/models"
)

// DecodeHeaders parses a JSON array of headers. Anything other than a
// non-empty array is an argument error and a header missing a required field
// is a structural error.
func DecodeHeaders(data []byte) ([]*models.Header, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, newError(KindArgument, fmt.Errorf("%w: %v", ErrInvalidArgument, err))
	}
	if len(raw) == 0 {
		return nil, newError(KindArgument, ErrInvalidArgument)
	}

	headers := make([]*models.Header, len(raw))
	for i, r := range raw {
		var h models.Header
		if err := json.Unmarshal(r, &h); err != nil {
			return nil, newError(KindStructural, fmt.Errorf("header %d: %w", i, err))
		}
		headers[i] = &h
	}
	return headers, nil
}

// AddJSON decodes a JSON array of headers and adds them
func (t *Tracker) AddJSON(ctx context.Context, data []byte) (*Reorg, error) {
	headers, err := DecodeHeaders(data)
	if err != nil {
		return nil, err
	}
	return t.Add(ctx, headers)
}
