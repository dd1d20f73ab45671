// Copyright (C) 2025 Anchorline Data
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cache provides the TTL-bounded session cache used by the
// retrieval pipeline.
//
// Keys are namespaced per session: the bare "{sessionID}" key holds the
// most recent aggregated document list, and "{sessionID}:{source}" holds
// the most recent result list for one retrieval source. Writes are
// last-write-wins per key: each (source x session) pair has exactly one
// logical writer, so no cross-key locking is needed.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache is the session cache contract. Implementations must be safe for
// concurrent use.
type Cache interface {
	// Get returns the value for key, or found=false when the key is
	// absent or expired.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Set stores value under key, fully replacing any previous value.
	// A zero ttl stores the entry without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key, reporting whether it existed.
	Delete(ctx context.Context, key string) (bool, error)

	// DeletePrefix removes every key starting with prefix, returning the
	// number of keys removed. Used on logout to drop a session and all of
	// its per-source sub-entries in one call.
	DeletePrefix(ctx context.Context, prefix string) (int, error)

	Close() error
}

// SourceKey builds the per-source sub-key for a session.
func SourceKey(sessionID, source string) string {
	return fmt.Sprintf("%s:%s", sessionID, source)
}
