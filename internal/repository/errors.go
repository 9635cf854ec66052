package repository

import "errors"

// ErrNotFound reports that a run or event lookup matched nothing. Handlers
// map it to 404; everything else from the store is a 500.
var ErrNotFound = errors.New("repository: not found")
