package feedbus

import "errors"

// ErrSymbolNotFound is raised when a feed is requested for a symbol the
// adapter does not serve (spec.md §7: "SymbolNotFound", session-fatal).
var ErrSymbolNotFound = errors.New("feedbus: symbol not found")

// ErrDuplicateWriter is raised when a ring already has a writer elected
// (spec.md §7: "Duplicate writer attempt on shm").
var ErrDuplicateWriter = errors.New("feedbus: duplicate shm writer")
