//go:build !linux && !windows

package presence

func newIdleProvider() IdleProvider {
	return unsupportedIdleProvider{}
}
