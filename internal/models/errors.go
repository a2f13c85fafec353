package models

import "errors"

// ErrNotFound is returned by repositories when no item exists for a key.
var ErrNotFound = errors.New("not found")
