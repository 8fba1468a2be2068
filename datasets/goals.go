package datasets

import "fmt"

// GoalTable maps a (scan, object) pair to the set of viewpoints from which
// the object counts as found.
type GoalTable struct {
	goals map[string][]string
}

// NewGoalTable builds a table from "<scan>_<objid>" keyed viewpoint lists.
func NewGoalTable(raw map[string][]string) *GoalTable {
	t := &GoalTable{goals: make(map[string][]string, len(raw))}
	for k, vps := range raw {
		t.goals[k] = append([]string(nil), vps...)
	}
	return t
}

// LoadGoalTable reads a goal table from a .json, .yaml or .yml file holding
// an object of viewpoint arrays.
func LoadGoalTable(path string) (*GoalTable, error) {
	var raw map[string][]string
	if err := decodeFile(path, &raw); err != nil {
		return nil, fmt.Errorf("load goal table: %w", err)
	}
	return NewGoalTable(raw), nil
}

// Goals returns the acceptable goal viewpoints for objID in scan. The second
// return value is false when the pair is not in the table.
func (t *GoalTable) Goals(scan, objID string) ([]string, bool) {
	vps, ok := t.goals[longID(scan, objID)]
	if !ok {
		return nil, false
	}
	return append([]string(nil), vps...), true
}

// Len returns the number of (scan, object) entries.
func (t *GoalTable) Len() int {
	return len(t.goals)
}
