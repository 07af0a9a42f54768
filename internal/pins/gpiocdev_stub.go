//go:build !linux

package pins

import (
	"errors"

	"github.com/orinctl/strapd/internal/models"
)

// GpiodDriver requires the Linux GPIO character device.
type GpiodDriver struct{}

// NewGpiodDriver fails on platforms without the GPIO character device.
func NewGpiodDriver(chip string, offsets map[models.LineID]int) (*GpiodDriver, error) {
	return nil, errors.New("gpio character device is only available on linux")
}

func (d *GpiodDriver) Assert(models.LineID) error                 { return ErrClosed }
func (d *GpiodDriver) Release(models.LineID) error                { return ErrClosed }
func (d *GpiodDriver) Read(models.LineID) (models.LineLevel, error) { return "", ErrClosed }
func (d *GpiodDriver) ReleaseAll() error                          { return ErrClosed }
func (d *GpiodDriver) Close() error                               { return nil }
