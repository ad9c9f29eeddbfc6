// Package catalog holds the salon's services and bookable time slots.
// A Catalog is immutable once loaded.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/julianstephens/salonbot/internal/constants"
)

//go:embed default.yaml
var defaultYAML []byte

type Service struct {
	Key         string `yaml:"key"`
	Name        string `yaml:"name"`
	Price       string `yaml:"price"`
	Duration    string `yaml:"duration"`
	Description string `yaml:"description"`
}

type file struct {
	Services []Service `yaml:"services"`
	Slots    []string  `yaml:"slots"`
	Contacts string    `yaml:"contacts"`
}

type Catalog struct {
	services []Service
	index    map[string]int
	slots    []string
	slotSet  map[string]struct{}
	contacts string
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("built-in catalog is invalid: %v", err))
	}
	return c
}

// Load reads a catalog file, or returns Default when path is empty.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	if len(f.Services) == 0 {
		return nil, fmt.Errorf("catalog must list at least one service")
	}
	if len(f.Slots) == 0 {
		return nil, fmt.Errorf("catalog must list at least one slot")
	}

	c := &Catalog{
		services: make([]Service, 0, len(f.Services)),
		index:    make(map[string]int, len(f.Services)),
		slots:    make([]string, 0, len(f.Slots)),
		slotSet:  make(map[string]struct{}, len(f.Slots)),
		contacts: strings.TrimSpace(f.Contacts),
	}

	for _, s := range f.Services {
		s.Key = strings.TrimSpace(s.Key)
		if s.Key == "" {
			return nil, fmt.Errorf("service %q has no key", s.Name)
		}
		if _, dup := c.index[s.Key]; dup {
			return nil, fmt.Errorf("duplicate service key %q", s.Key)
		}
		if strings.TrimSpace(s.Name) == "" {
			s.Name = s.Key
		}
		c.index[s.Key] = len(c.services)
		c.services = append(c.services, s)
	}

	for _, slot := range f.Slots {
		slot = strings.TrimSpace(slot)
		if _, err := time.Parse(constants.TimeFormat, slot); err != nil {
			return nil, fmt.Errorf("invalid slot %q: want HH:MM", slot)
		}
		if _, dup := c.slotSet[slot]; dup {
			return nil, fmt.Errorf("duplicate slot %q", slot)
		}
		c.slotSet[slot] = struct{}{}
		c.slots = append(c.slots, slot)
	}

	return c, nil
}

// Services returns the services in catalog order.
func (c *Catalog) Services() []Service {
	out := make([]Service, len(c.services))
	copy(out, c.services)
	return out
}

func (c *Catalog) Lookup(key string) (Service, bool) {
	i, ok := c.index[key]
	if !ok {
		return Service{}, false
	}
	return c.services[i], true
}

// KeyForName finds the service whose key or display name matches name.
func (c *Catalog) KeyForName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if _, ok := c.index[name]; ok {
		return name, true
	}
	for _, s := range c.services {
		if strings.EqualFold(s.Name, name) {
			return s.Key, true
		}
	}
	return "", false
}

// ServiceName returns the display name for key, or key itself when unknown.
func (c *Catalog) ServiceName(key string) string {
	if s, ok := c.Lookup(key); ok {
		return s.Name
	}
	return key
}

// Slots returns the bookable slot labels in catalog order.
func (c *Catalog) Slots() []string {
	out := make([]string, len(c.slots))
	copy(out, c.slots)
	return out
}

func (c *Catalog) HasSlot(slot string) bool {
	_, ok := c.slotSet[slot]
	return ok
}

// SlotStart returns the start of slot on the given day in day's location.
func (c *Catalog) SlotStart(day time.Time, slot string) (time.Time, error) {
	if !c.HasSlot(slot) {
		return time.Time{}, fmt.Errorf("unknown slot %q", slot)
	}
	t, err := time.Parse(constants.TimeFormat, slot)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, day.Location()), nil
}

func (c *Catalog) Contacts() string {
	return c.contacts
}
