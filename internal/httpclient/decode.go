package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
)

// DoJSON performs opts and unmarshals the response body into a freshly
// allocated T. A nil body (204/DELETE) returns the zero value of T.
func DoJSON[T any](ctx context.Context, t *Transport, opts Options) (T, error) {
	var out T
	data, err := t.Do(ctx, opts)
	if err != nil {
		return out, err
	}
	if data == nil {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("httpclient: failed to decode response: %w", err)
	}
	return out, nil
}
