// toolkit/windowsservice/programstub.go
//go:build !windows

package windowsservice

import (
	"errors"

	"github.com/dalemusser/signup/app"
)

// ErrNotWindows is returned by Run outside Windows.
var ErrNotWindows = errors.New("windowsservice: not supported on this platform")

// UnderServiceManager is always false outside Windows.
func UnderServiceManager() bool { return false }

// Run is unavailable outside Windows.
func Run[C any, D any](Config, app.Hooks[C, D]) error {
	return ErrNotWindows
}
