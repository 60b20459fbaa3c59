//go:build !windows

package shell

// enableVT is a no-op on non-Windows platforms (terminals usually support ANSI already).
func enableVT() error { return nil }
