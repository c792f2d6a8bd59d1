package ids

import "github.com/oklog/ulid/v2"

// New returns a lexicographically sortable identifier for user records.
// ulid.Make draws from a process-wide monotonic entropy source and is safe for concurrent use.
func New() string {
	return ulid.Make().String()
}

// Valid reports whether s parses as a ULID.
func Valid(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
