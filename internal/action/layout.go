package action

import (
	"fmt"
	"sort"
	"strings"
)

type Field struct {
	Name  string `yaml:"name"`
	Start int    `yaml:"start"`
	End   int    `yaml:"end"`
}

func (f Field) Len() int { return f.End - f.Start }

// Layout describes how a flat action vector splits into named sub-fields.
type Layout struct {
	Name   string  `yaml:"name"`
	Dim    int     `yaml:"dim"`
	Fields []Field `yaml:"fields"`
}

// Command is an action vector decoded into its named sub-fields.
type Command map[string]Vector

// R1 is the 21-dimensional mobile manipulator layout.
func R1() Layout {
	return Layout{
		Name: "r1",
		Dim:  21,
		Fields: []Field{
			{Name: "mobile_base", Start: 0, End: 3},
			{Name: "torso", Start: 3, End: 7},
			{Name: "left_arm", Start: 7, End: 13},
			{Name: "left_gripper", Start: 13, End: 14},
			{Name: "right_arm", Start: 14, End: 20},
			{Name: "right_gripper", Start: 20, End: 21},
		},
	}
}

// Bimanual16 is the 16-dimensional two-arm layout with 7-DoF arms and no base.
func Bimanual16() Layout {
	return Layout{
		Name: "bimanual16",
		Dim:  16,
		Fields: []Field{
			{Name: "left_arm", Start: 0, End: 7},
			{Name: "left_gripper", Start: 7, End: 8},
			{Name: "right_arm", Start: 8, End: 15},
			{Name: "right_gripper", Start: 15, End: 16},
		},
	}
}

var layouts = map[string]func() Layout{
	"r1":         R1,
	"bimanual16": Bimanual16,
}

func LookupLayout(name string) (Layout, error) {
	fn, ok := layouts[name]
	if !ok {
		return Layout{}, fmt.Errorf("%w: %s", ErrUnknownLayout, name)
	}
	return fn(), nil
}

func ListLayouts() []string {
	names := make([]string, 0, len(layouts))
	for name := range layouts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that the fields tile [0, Dim) without gaps or overlaps.
func (l Layout) Validate() error {
	if l.Dim <= 0 {
		return fmt.Errorf("layout %q: dim must be positive, got %d", l.Name, l.Dim)
	}
	if len(l.Fields) == 0 {
		return fmt.Errorf("layout %q: no fields", l.Name)
	}
	next := 0
	seen := make(map[string]bool, len(l.Fields))
	for _, f := range l.Fields {
		if f.Name == "" {
			return fmt.Errorf("layout %q: field with empty name", l.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("layout %q: duplicate field %q", l.Name, f.Name)
		}
		seen[f.Name] = true
		if f.Start != next || f.End <= f.Start {
			return fmt.Errorf("layout %q: field %q spans [%d,%d), expected start %d", l.Name, f.Name, f.Start, f.End, next)
		}
		next = f.End
	}
	if next != l.Dim {
		return fmt.Errorf("layout %q: fields cover %d of %d dims", l.Name, next, l.Dim)
	}
	return nil
}

// GripperIndices returns every vector index belonging to a field whose name
// ends in "gripper".
func (l Layout) GripperIndices() []int {
	var idx []int
	for _, f := range l.Fields {
		if !strings.HasSuffix(f.Name, "gripper") {
			continue
		}
		for i := f.Start; i < f.End; i++ {
			idx = append(idx, i)
		}
	}
	return idx
}

func (l Layout) FieldNames() []string {
	names := make([]string, len(l.Fields))
	for i, f := range l.Fields {
		names[i] = f.Name
	}
	return names
}

// Decode slices v into named sub-vectors. Each sub-vector is a copy.
func (l Layout) Decode(v Vector) (Command, error) {
	if len(v) != l.Dim {
		return nil, fmt.Errorf("%w: got %d values for layout %q (dim %d)", ErrDimensionMismatch, len(v), l.Name, l.Dim)
	}
	cmd := make(Command, len(l.Fields))
	for _, f := range l.Fields {
		cmd[f.Name] = v[f.Start:f.End].Clone()
	}
	return cmd, nil
}

// Encode concatenates the named sub-vectors back into a flat vector in
// field order.
func (l Layout) Encode(cmd Command) (Vector, error) {
	v := make(Vector, l.Dim)
	for _, f := range l.Fields {
		part, ok := cmd[f.Name]
		if !ok {
			return nil, fmt.Errorf("%w: missing field %q", ErrDimensionMismatch, f.Name)
		}
		if len(part) != f.Len() {
			return nil, fmt.Errorf("%w: field %q has %d values, want %d", ErrDimensionMismatch, f.Name, len(part), f.Len())
		}
		copy(v[f.Start:f.End], part)
	}
	return v, nil
}
