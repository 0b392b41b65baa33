//go:build !linux

package controller

func (System) Open(info DeviceInfo) (Controller, error) {
	return nil, ErrUnsupported
}
