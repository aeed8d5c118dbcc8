package shared

import (
	"fmt"
	"net/http"
	"strconv"
)

// ActorHeader carries the acting employee id; authentication happens upstream.
const ActorHeader = "X-Actor-ID"

// ActorFromRequest parses the acting employee id from the request header.
func ActorFromRequest(r *http.Request) (int64, error) {
	raw := r.Header.Get(ActorHeader)
	if raw == "" {
		return 0, fmt.Errorf("%s header required: %w", ActorHeader, ErrValidation)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s header must be a positive integer: %w", ActorHeader, ErrValidation)
	}
	return id, nil
}
