package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Device kinds. Each notification channel delivers to devices of one kind.
const (
	KindPush  = "push"
	KindSMS   = "sms"
	KindEmail = "email"
)

// ErrUnknownKind is returned by Register for an unsupported device kind.
var ErrUnknownKind = errors.New("channel: unknown device kind")

// Device is one registered notification target: a push token, a phone
// number or an email address.
type Device struct {
	ID           string    `yaml:"id" json:"id"`
	Kind         string    `yaml:"kind" json:"kind"`
	Address      string    `yaml:"address" json:"address"`
	Label        string    `yaml:"label,omitempty" json:"label,omitempty"`
	RegisteredAt time.Time `yaml:"registered_at" json:"registered_at"`
}

type directoryFile struct {
	Devices []Device `yaml:"devices"`
}

// Directory is the registered device list, persisted as YAML. An empty path
// keeps the directory in memory only.
//
// Directory is safe for concurrent use.
type Directory struct {
	path string
	now  func() time.Time

	mu      sync.RWMutex
	devices []Device
}

// OpenDirectory loads the directory at path. A missing file is an empty
// directory.
func OpenDirectory(path string) (*Directory, error) {
	d := &Directory{path: path, now: time.Now}
	if path == "" {
		return d, nil
	}
	devices, err := readDevices(path)
	if err != nil {
		return nil, err
	}
	d.devices = devices
	return d, nil
}

// Reload replaces the in-memory list with the file contents. On error the
// current list is kept.
func (d *Directory) Reload() error {
	if d.path == "" {
		return nil
	}
	devices, err := readDevices(d.path)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.devices = devices
	d.mu.Unlock()
	return nil
}

// Watch reloads the directory whenever its file is written by another
// process, such as the devices CLI. It runs until ctx is cancelled.
func (d *Directory) Watch(ctx context.Context) error {
	if d.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	path := filepath.Clean(d.path)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := d.Reload(); err != nil {
				slog.Error("channel: devices reload failed", "path", path, "err", err)
				continue
			}
			slog.Info("channel: devices reloaded", "path", path, "count", d.count())

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("channel: devices watcher error", "err", err)
		}
	}
}

func (d *Directory) count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.devices)
}

func readDevices(path string) ([]Device, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("channel: read devices: %w", err)
	}
	var f directoryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("channel: parse devices: %w", err)
	}
	return f.Devices, nil
}

// Register adds a device. Registering an address that is already present
// for kind returns the existing entry.
func (d *Directory) Register(kind, address, label string) (Device, error) {
	switch kind {
	case KindPush, KindSMS, KindEmail:
	default:
		return Device{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return Device{}, errors.New("channel: device address is required")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, dev := range d.devices {
		if dev.Kind == kind && dev.Address == address {
			return dev, nil
		}
	}
	dev := Device{
		ID:           uuid.NewString(),
		Kind:         kind,
		Address:      address,
		Label:        label,
		RegisteredAt: d.now().UTC(),
	}
	d.devices = append(d.devices, dev)
	if err := d.saveLocked(); err != nil {
		d.devices = d.devices[:len(d.devices)-1]
		return Device{}, err
	}
	return dev, nil
}

// Unregister removes every device whose address or ID matches key and
// reports whether anything was removed.
func (d *Directory) Unregister(key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	kept := make([]Device, 0, len(d.devices))
	for _, dev := range d.devices {
		if dev.Address != key && dev.ID != key {
			kept = append(kept, dev)
		}
	}
	if len(kept) == len(d.devices) {
		return false, nil
	}
	prev := d.devices
	d.devices = kept
	if err := d.saveLocked(); err != nil {
		d.devices = prev
		return false, err
	}
	return true, nil
}

// List returns the devices of kind, or all devices when kind is empty,
// ordered by registration time.
func (d *Directory) List(kind string) []Device {
	d.mu.RLock()
	out := make([]Device, 0, len(d.devices))
	for _, dev := range d.devices {
		if kind == "" || dev.Kind == kind {
			out = append(out, dev)
		}
	}
	d.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].RegisteredAt.Before(out[j].RegisteredAt) })
	return out
}

// Addresses returns the addresses registered for kind.
func (d *Directory) Addresses(kind string) []string {
	devs := d.List(kind)
	out := make([]string, len(devs))
	for i, dev := range devs {
		out[i] = dev.Address
	}
	return out
}

func (d *Directory) saveLocked() error {
	if d.path == "" {
		return nil
	}
	data, err := yaml.Marshal(directoryFile{Devices: d.devices})
	if err != nil {
		return fmt.Errorf("channel: encode devices: %w", err)
	}
	tmp := filepath.Join(filepath.Dir(d.path), "."+filepath.Base(d.path)+".tmp")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("channel: write devices: %w", err)
	}
	if err := os.Rename(tmp, d.path); err != nil {
		return fmt.Errorf("channel: write devices: %w", err)
	}
	return nil
}
