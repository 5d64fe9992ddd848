// Package draft holds the NPA draft document model: fields, sections, the
// progress calculator, field mutations and the section navigator.
package draft

import "strings"

// FieldType decides which value representation a field uses and which
// mutations are legal on it.
type FieldType string

const (
	TypeText        FieldType = "text"
	TypeTextarea    FieldType = "textarea"
	TypeYesNo       FieldType = "yesno"
	TypeDropdown    FieldType = "dropdown"
	TypeDate        FieldType = "date"
	TypeCurrency    FieldType = "currency"
	TypeBulletList  FieldType = "bullet_list"
	TypeMultiselect FieldType = "multiselect"
)

// Valid reports whether t is one of the known field types.
func (t FieldType) Valid() bool {
	switch t {
	case TypeText, TypeTextarea, TypeYesNo, TypeDropdown, TypeDate, TypeCurrency, TypeBulletList, TypeMultiselect:
		return true
	default:
		return false
	}
}

// acceptsPlainValue reports whether SetValue is legal for t.
func (t FieldType) acceptsPlainValue() bool {
	switch t {
	case TypeText, TypeTextarea, TypeDropdown, TypeDate, TypeCurrency:
		return true
	default:
		return false
	}
}

// Lineage records who or what produced a field's current value.
type Lineage string

const (
	LineageManual  Lineage = "MANUAL"
	LineageAuto    Lineage = "AUTO"
	LineageAdapted Lineage = "ADAPTED"
)

// Valid reports whether l is a known lineage tag.
func (l Lineage) Valid() bool {
	return l == LineageManual || l == LineageAuto || l == LineageAdapted
}

// Strategy records how an automated fill produced the value.
type Strategy string

const (
	StrategyRule   Strategy = "RULE"
	StrategyCopy   Strategy = "COPY"
	StrategyLLM    Strategy = "LLM"
	StrategyManual Strategy = "MANUAL"
)

// Valid reports whether s is a known fill strategy.
func (s Strategy) Valid() bool {
	return s == StrategyRule || s == StrategyCopy || s == StrategyLLM || s == StrategyManual
}

// Dependency is an applicability precondition on another field's value.
type Dependency struct {
	Field string `json:"field" yaml:"field"`
	Value string `json:"value" yaml:"value"`
}

// Field is one typed value slot of the draft.
type Field struct {
	Key         string      `json:"key" yaml:"key"`
	NodeID      string      `json:"nodeId,omitempty" yaml:"node_id,omitempty"`
	Label       string      `json:"label" yaml:"label"`
	Type        FieldType   `json:"type" yaml:"type"`
	Value       string      `json:"value" yaml:"value,omitempty"`
	YesNoValue  bool        `json:"yesNoValue,omitempty" yaml:"yes_no_value,omitempty"`
	BulletItems []string    `json:"bulletItems,omitempty" yaml:"bullet_items,omitempty"`
	Required    bool        `json:"required" yaml:"required,omitempty"`
	Lineage     Lineage     `json:"lineage" yaml:"lineage,omitempty"`
	Strategy    Strategy    `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	Confidence  *float64    `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	Options     []string    `json:"options,omitempty" yaml:"options,omitempty"`
	DependsOn   *Dependency `json:"dependsOn,omitempty" yaml:"depends_on,omitempty"`
	Placeholder string      `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
	Tooltip     string      `json:"tooltip,omitempty" yaml:"tooltip,omitempty"`

	// selection keeps multiselect options in toggle order.
	selection []string
}

// IsFilled reports whether the field counts as filled for progress.
// Bullet lists count only their items.
func IsFilled(f *Field) bool {
	if f.Type == TypeBulletList {
		return len(f.BulletItems) > 0
	}
	return f.Value != ""
}

// ConfidenceMeaningful reports whether Confidence describes an automated fill.
func (f *Field) ConfidenceMeaningful() bool {
	if f.Confidence == nil {
		return false
	}
	switch f.Strategy {
	case StrategyLLM, StrategyRule, StrategyCopy:
		return true
	default:
		return false
	}
}

// Selection returns the multiselect options in the order they were toggled on.
func (f *Field) Selection() []string {
	out := make([]string, len(f.selection))
	copy(out, f.selection)
	return out
}

// normalize restores the derived representations from the canonical ones.
// It runs when a field enters the model, never on user edits.
func (f *Field) normalize() {
	if f.Lineage == "" {
		f.Lineage = LineageAuto
	}
	if f.Confidence != nil {
		c := *f.Confidence
		if c < 0 {
			c = 0
		}
		if c > 1 {
			c = 1
		}
		f.Confidence = &c
	}
	switch f.Type {
	case TypeYesNo:
		if f.Value != "" {
			f.YesNoValue = strings.EqualFold(f.Value, "yes")
		}
		if f.Value != "" || f.YesNoValue {
			f.Value = yesNoString(f.YesNoValue)
		}
	case TypeBulletList:
		if len(f.BulletItems) == 0 && f.Value != "" {
			f.BulletItems = splitBullets(f.Value)
		}
		f.Value = joinBullets(f.BulletItems)
	case TypeMultiselect:
		f.selection = splitSelection(f.Value)
		f.Value = joinSelection(f.selection)
	}
}

// Copy returns a deep copy of the field.
func (f *Field) Copy() Field {
	return f.clone()
}

func (f *Field) clone() Field {
	out := *f
	if f.BulletItems != nil {
		out.BulletItems = append([]string(nil), f.BulletItems...)
	}
	if f.Options != nil {
		out.Options = append([]string(nil), f.Options...)
	}
	if f.selection != nil {
		out.selection = append([]string(nil), f.selection...)
	}
	if f.Confidence != nil {
		c := *f.Confidence
		out.Confidence = &c
	}
	if f.DependsOn != nil {
		dep := *f.DependsOn
		out.DependsOn = &dep
	}
	return out
}

func yesNoString(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

func joinBullets(items []string) string {
	return strings.Join(items, "\n")
}

func splitBullets(value string) []string {
	lines := strings.Split(value, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-"))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func joinSelection(selected []string) string {
	return strings.Join(selected, ", ")
}

func splitSelection(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" || contains(out, part) {
			continue
		}
		out = append(out, part)
	}
	return out
}

func contains(items []string, want string) bool {
	for _, item := range items {
		if item == want {
			return true
		}
	}
	return false
}
