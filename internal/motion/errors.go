package motion

import "errors"

var (
	// ErrNotConnected indicates an operation on a disconnected controller.
	ErrNotConnected = errors.New("motion: device not connected")

	// ErrUnknownAxis indicates an axis name outside the installed set.
	ErrUnknownAxis = errors.New("motion: unknown axis")

	// ErrUnknownDevice indicates a device name the manager does not hold.
	ErrUnknownDevice = errors.New("motion: unknown device")

	// ErrUnknownFamily indicates an unrecognised family string in
	// configuration.
	ErrUnknownFamily = errors.New("motion: unknown device family")

	// ErrTimeout indicates a wait deadline elapsed before motion settled.
	ErrTimeout = errors.New("motion: timeout waiting for motion completion")
)
