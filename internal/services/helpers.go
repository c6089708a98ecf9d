package services

import (
	"context"
	"strings"
)

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func trimmedPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func stringPtr(value string) *string {
	return trimmedPtr(&value)
}

// chunkIDs splits ids into slices of at most size elements so IN lists stay
// below driver parameter limits.
func chunkIDs(ids []uint64, size int) [][]uint64 {
	if size <= 0 {
		size = len(ids)
	}
	var chunks [][]uint64
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
