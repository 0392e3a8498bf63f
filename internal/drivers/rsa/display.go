package rsa

import (
	"fmt"

	"github.com/davmor83/labrig-core/internal/instrument"
)

func (d *Driver) registerDisplay() {
	key := instrument.ScalarKey(PathDisplayTitle)
	d.core.Attributes().MustRegister(instrument.Descriptor{
		Path:    PathDisplayTitle,
		Group:   "display",
		Doc:     "Title line of the instrument display. The instrument cannot report it back, so reads return the last value written.",
		Local:   true,
		Default: "",
		Get: func(int) (any, error) {
			v, _ := d.core.Cache().Read(key)
			return v, nil
		},
		Set: func(_ int, value any) error {
			s, ok := value.(string)
			if !ok {
				return fmt.Errorf("%w: %q wants string, got %T", instrument.ErrValueNotSupported, PathDisplayTitle, value)
			}
			return d.core.CachedSet(key, s, func() error {
				return d.sess.Commandf(`TITLE \%s\`, s)
			})
		},
	})
}

// DisplayClear erases the display. A running instrument repaints it on the
// next acquisition.
func (d *Driver) DisplayClear() error {
	if err := d.core.RequireInitialized(); err != nil {
		return err
	}
	if d.core.Simulated() {
		return nil
	}
	for _, cmd := range []string{"HD", "CLRDSP"} {
		if err := d.sess.Command(cmd); err != nil {
			return err
		}
	}
	return nil
}

// DisplayString writes text to the advisory line of the display. An empty
// string clears the line.
func (d *Driver) DisplayString(text string) error {
	if err := d.core.RequireInitialized(); err != nil {
		return err
	}
	if d.core.Simulated() {
		return nil
	}
	cmds := []string{"PU", "PA 8,137", "HD", fmt.Sprintf(`TEXT \%s\`, text)}
	for _, cmd := range cmds {
		if err := d.sess.Command(cmd); err != nil {
			return err
		}
	}
	return nil
}
