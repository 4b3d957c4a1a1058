//go:build windows

package index

// fileLock is a no-op on Windows; only the in-process mutex applies there.
type fileLock struct{}

func newFileLock(string) *fileLock { return &fileLock{} }

func (l *fileLock) acquire() error { return nil }

func (l *fileLock) release() error { return nil }
