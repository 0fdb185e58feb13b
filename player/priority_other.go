//go:build !linux

package player

// maxPriority is best effort; without the capability the run proceeds
// at normal priority.
func maxPriority() error {
	return nil
}
