//go:build !((darwin || linux || freebsd) && (amd64 || arm64))

package libr

import (
	"go.uber.org/zap"

	"github.com/wippyai/pinbridge"
	"github.com/wippyai/pinbridge/errors"
)

// Config holds configuration for starting R
type Config struct {
	Path   string
	Args   []string
	Logger *zap.Logger
}

// Runtime is unavailable on this platform.
type Runtime struct{}

// Open always fails on this platform.
func Open(*Config) (*Runtime, error) {
	return nil, errors.Unsupported(errors.PhaseLoad, "libR on this platform")
}

func (r *Runtime) Nil() pinbridge.Identity { return 0 }

func (r *Runtime) Pin(pinbridge.Identity) error {
	return errors.Unsupported(errors.PhaseForeign, "pin")
}

func (r *Runtime) Unpin(pinbridge.Identity) error {
	return errors.Unsupported(errors.PhaseForeign, "unpin")
}

func (r *Runtime) TypeOf(pinbridge.Identity) (pinbridge.TypeTag, error) {
	return 0, errors.Unsupported(errors.PhaseForeign, "type of")
}

func (r *Runtime) Install(string) (pinbridge.Identity, error) {
	return 0, errors.Unsupported(errors.PhaseForeign, "install")
}

func (r *Runtime) MkString(string) (pinbridge.Identity, error) {
	return 0, errors.Unsupported(errors.PhaseForeign, "mkString")
}

func (r *Runtime) Close() error { return nil }
