package utils

// Must panics if err is non-nil, otherwise returns v. Used for
// initialization-time calls that can only fail on programmer error
// (e.g. constructing a logger).
func Must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}

	return v
}
