package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Store persists Settings as a yaml document. It is safe for concurrent use.
type Store struct {
	path string
	mu   sync.Mutex

	// hostIP finds the LAN address used when none is configured.
	hostIP func() string
}

func NewStore(path string) *Store {
	return &Store{path: path, hostIP: DetectHostIP}
}

func (s *Store) Path() string { return s.path }

// Load reads the settings file, sanitizes it and writes it back. A missing
// file yields defaults.
func (s *Store) Load() (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := DefaultSettings()
	b, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return Settings{}, fmt.Errorf("read %s: %w", s.path, err)
	default:
		if err := yaml.Unmarshal(b, &set); err != nil {
			return Settings{}, fmt.Errorf("parse %s: %w", s.path, err)
		}
	}

	set = set.Sanitize()
	if set.HostIP == "" && s.hostIP != nil {
		set.HostIP = s.hostIP()
	}
	if err := s.write(set); err != nil {
		return Settings{}, err
	}
	return set, nil
}

func (s *Store) Save(set Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(set)
}

func (s *Store) write(set Settings) error {
	b, err := yaml.Marshal(set)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}

// DetectHostIP returns the first private LAN address of this machine, or ""
// when there is none.
func DetectHostIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, a := range addrs {
		ipn, ok := a.(*net.IPNet)
		if !ok || ipn.IP.To4() == nil {
			continue
		}
		if ip := ipn.IP.String(); IsValidLocalIP(ip) {
			return ip
		}
	}
	return ""
}
