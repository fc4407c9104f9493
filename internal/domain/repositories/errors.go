package repositories

import "errors"

// ErrStaleEntry is returned by a guarded write whose expected state no longer holds
var ErrStaleEntry = errors.New("queue entry changed concurrently")
