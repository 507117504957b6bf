//go:build linux

package selector

// New creates the best selector backend for the current platform.
func New() (Selector, error) {
	return NewEpoll()
}
