package util

// Ptr returns a pointer to the given value.
// Used for optional filters and fields such as *SeriesStatus and *time.Time.
func Ptr[T any](v T) *T {
	return &v
}
