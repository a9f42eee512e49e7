//go:build !linux && !(darwin && cgo) && !(windows && cgo)

package clip

// New returns Memory: there is no supported system clipboard on this
// platform or build (containers, CI, CGO_ENABLED=0).
func New() Source {
	return NewMemory()
}
