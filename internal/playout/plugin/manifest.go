package plugin

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SlotType is the kind of operator control a slot renders as.
type SlotType string

// Slot types.
const (
	SlotAction SlotType = "action"
	SlotText   SlotType = "text"
	SlotNumber SlotType = "number"
	SlotSelect SlotType = "select"
)

// SlotOption is one choice of a select slot.
type SlotOption struct {
	Value string `yaml:"value" json:"value"`
	Title string `yaml:"title,omitempty" json:"title,omitempty"`
}

// Slot is one operator control exposed by a plugin.
type Slot struct {
	Type    SlotType     `yaml:"type" json:"type"`
	Name    string       `yaml:"name" json:"name"`
	Options []SlotOption `yaml:"options,omitempty" json:"options,omitempty"`
	Value   any          `yaml:"value,omitempty" json:"value,omitempty"`
}

// Title is the slot name with its first letter capitalised.
func (s Slot) Title() string {
	if s.Name == "" {
		return ""
	}
	return strings.ToUpper(s.Name[:1]) + s.Name[1:]
}

// Manifest describes a plugin and its operator controls.
type Manifest struct {
	Name  string `yaml:"name" json:"name"`
	Title string `yaml:"title" json:"title"`

	// Kind selects the built-in implementation.
	Kind string `yaml:"kind" json:"kind"`

	// Layer is the device layer the plugin draws on, if any.
	Layer int `yaml:"id_layer" json:"id_layer,omitempty"`

	Slots []Slot `yaml:"slots" json:"slots,omitempty"`

	// Settings are kind-specific options.
	Settings map[string]string `yaml:"settings" json:"-"`
}

// LoadManifest reads and validates a plugin manifest.
//
// Parameters:
//   - path: Path to the YAML manifest
//
// Returns:
//   - *Manifest: Validated manifest with a default title applied
//   - error: If the file cannot be read, parsed, or fails validation
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if m.Title == "" && m.Name != "" {
		m.Title = Slot{Name: m.Name}.Title()
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the manifest for errors.
func (m *Manifest) Validate() error {
	var errs []string

	if m.Name == "" {
		errs = append(errs, "name is required")
	}
	if m.Kind == "" {
		errs = append(errs, "kind is required")
	}
	if m.Layer < 0 {
		errs = append(errs, "id_layer must not be negative")
	}

	names := make(map[string]bool)
	for i, s := range m.Slots {
		switch s.Type {
		case SlotAction, SlotText, SlotNumber, SlotSelect:
		default:
			errs = append(errs, fmt.Sprintf("slots[%d].type %q is not valid", i, s.Type))
		}
		if s.Name == "" {
			errs = append(errs, fmt.Sprintf("slots[%d].name is required", i))
			continue
		}
		if names[s.Name] {
			errs = append(errs, fmt.Sprintf("slots[%d].name %q is duplicate", i, s.Name))
		}
		names[s.Name] = true
		if s.Type == SlotSelect && len(s.Options) == 0 {
			errs = append(errs, fmt.Sprintf("slots[%d] select needs options", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidManifest, strings.Join(errs, "; "))
	}
	return nil
}
