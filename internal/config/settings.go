package config

// Pairing settings: what the user typed into the UI for a controller, and
// the rules that decide whether a connect request may start at all.

import (
	"errors"
	"fmt"
	"regexp"

	"joydance-bridge/internal/protocol"
)

type Method string

const (
	MethodDefault Method = "default"
	MethodFast    Method = "fast"
	MethodStadia  Method = "stadia"
	MethodOld     Method = "old"
)

func (m Method) Valid() bool {
	switch m {
	case MethodDefault, MethodFast, MethodStadia, MethodOld:
		return true
	}
	return false
}

// UsesPairingCode reports whether the method pairs through the cloud
// service rather than a console IP.
func (m Method) UsesPairingCode() bool {
	return m == MethodDefault || m == MethodStadia
}

// ProtocolVersion is the protocol dialect a method talks.
func (m Method) ProtocolVersion() protocol.Version {
	if m == MethodOld {
		return protocol.V1
	}
	return protocol.V2
}

var (
	ErrInvalidMethod      = errors.New("invalid pairing method")
	ErrInvalidHostIP      = errors.New("invalid host ip address")
	ErrInvalidConsoleIP   = errors.New("invalid console ip address")
	ErrInvalidPairingCode = errors.New("invalid pairing code")
)

const octet = `(\d{1,2}|1\d\d|2[0-4]\d|25[0-5])`

var (
	pairingCodeRe = regexp.MustCompile(`^\d{6}$`)
	localIPRe     = regexp.MustCompile(`^(192\.168|10\.` + octet + `)\.` + octet + `\.` + octet + `$`)
)

func IsValidPairingCode(s string) bool { return pairingCodeRe.MatchString(s) }

// IsValidLocalIP accepts 192.168.x.y and 10.x.y.z addresses only.
func IsValidLocalIP(s string) bool { return localIPRe.MatchString(s) }

// Settings are the persisted pairing inputs.
type Settings struct {
	Method      Method `yaml:"pairing_method" json:"pairing_method"`
	HostIP      string `yaml:"host_ip_addr" json:"host_ip_addr"`
	ConsoleIP   string `yaml:"console_ip_addr" json:"console_ip_addr"`
	PairingCode string `yaml:"pairing_code" json:"pairing_code"`
}

func DefaultSettings() Settings {
	return Settings{Method: MethodDefault}
}

// Validate checks a connect request. Methods pairing through the cloud need
// the host IP and a code; the others dial the console IP directly.
func (s Settings) Validate() error {
	if !s.Method.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMethod, s.Method)
	}
	switch s.Method {
	case MethodDefault, MethodStadia:
		if !IsValidLocalIP(s.HostIP) {
			return fmt.Errorf("%w: %q", ErrInvalidHostIP, s.HostIP)
		}
		if !IsValidPairingCode(s.PairingCode) {
			return fmt.Errorf("%w: %q", ErrInvalidPairingCode, s.PairingCode)
		}
	case MethodFast, MethodOld:
		if !IsValidLocalIP(s.ConsoleIP) {
			return fmt.Errorf("%w: %q", ErrInvalidConsoleIP, s.ConsoleIP)
		}
	}
	return nil
}

// Sanitize resets every field that would not pass validation on its own.
func (s Settings) Sanitize() Settings {
	if !s.Method.Valid() {
		s.Method = MethodDefault
	}
	if !IsValidLocalIP(s.HostIP) {
		s.HostIP = ""
	}
	if !IsValidLocalIP(s.ConsoleIP) {
		s.ConsoleIP = ""
	}
	if !IsValidPairingCode(s.PairingCode) {
		s.PairingCode = ""
	}
	return s
}
