package packager

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"streamgate/internal/domain"
)

// classifyExit maps an FFmpeg failure to a domain error kind based on its
// stderr output. Substring matching is fragile across FFmpeg versions; it is
// isolated here so an exit-signature table can replace it in one place.
func classifyExit(ctx context.Context, waitErr error, stderr string) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", domain.ErrCancelled, ctx.Err())
	}

	lowered := strings.ToLower(stderr)
	switch {
	case strings.Contains(lowered, "invalid data"),
		strings.Contains(lowered, "error opening input"),
		strings.Contains(lowered, "moov atom not found"),
		strings.Contains(lowered, "end of file"):
		// The leading bytes have not landed yet; the coordinator retries.
		return fmt.Errorf("%w: %s", domain.ErrFileNotReady, firstLine(stderr))
	case strings.Contains(lowered, "codec"), strings.Contains(lowered, "format"):
		return fmt.Errorf("%w: %s", domain.ErrCodec, firstLine(stderr))
	}

	if stderr != "" {
		return fmt.Errorf("ffmpeg: %w: %s", waitErr, firstLine(stderr))
	}
	return fmt.Errorf("ffmpeg: %w", waitErr)
}

// isRetryableAsReEncode reports whether a failed stream-copy run should fall
// back to re-encoding.
func isRetryableAsReEncode(err error) bool {
	return errors.Is(err, domain.ErrCodec)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
