package compiler

import "errors"

var (
	ErrMacroAlreadyExists = errors.New("macro already exists")
	ErrMacroDoesNotExist  = errors.New("macro does not exist")
)

// MacroTable maps macro names to replacement text, remembering insertion
// order.
type MacroTable struct {
	order  []string
	values map[string]string
}

func NewMacroTable() *MacroTable {
	return &MacroTable{values: make(map[string]string)}
}

// Add defines name. An existing definition is left untouched.
func (m *MacroTable) Add(name, value string) error {
	if _, ok := m.values[name]; ok {
		return ErrMacroAlreadyExists
	}
	m.values[name] = value
	m.order = append(m.order, name)
	return nil
}

func (m *MacroTable) Contains(name string) bool {
	_, ok := m.values[name]
	return ok
}

// Get returns the replacement text of name.
func (m *MacroTable) Get(name string) (string, error) {
	v, ok := m.values[name]
	if !ok {
		return "", ErrMacroDoesNotExist
	}
	return v, nil
}

func (m *MacroTable) Remove(name string) error {
	if _, ok := m.values[name]; !ok {
		return ErrMacroDoesNotExist
	}
	delete(m.values, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// Names lists the defined macros in the order they were added.
func (m *MacroTable) Names() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

func (m *MacroTable) Len() int {
	return len(m.order)
}
