package ingest

import (
	"context"
	"time"

	"github.com/AngelCh415/lead-funnel/internal/utils"
)

var defaultBackoff = utils.NewBackoff(100*time.Millisecond, 3)

// GetJSONWithRetry fetches url into dst, retrying transport errors and
// retryable statuses with exponential backoff and jitter.
func GetJSONWithRetry(ctx context.Context, c HTTPClient, b utils.Backoff, url string, dst any) error {
	var last error
	err := b.Do(ctx, func(int) error {
		last = getJSON(ctx, c, url, dst)
		if last != nil && !retryable(last) {
			return nil
		}
		return last
	})
	if err != nil {
		return err
	}
	return last
}
