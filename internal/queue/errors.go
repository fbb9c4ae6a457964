package queue

import "errors"

// ErrQueueUnavailable indicates the cache layer backing the queue could
// not be reached. Enqueue failures are surfaced, never silently dropped.
var ErrQueueUnavailable = errors.New("queue unavailable")
