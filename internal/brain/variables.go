package brain

import (
	"errors"
	"fmt"
)

// MaxNameLen is the number of significant bytes in a variable name.
const MaxNameLen = 31

var ErrVariableCapacity = errors.New("variable store full")

// Variables is a bounded name to int32 store. Names are truncated to
// MaxNameLen bytes. Lookups of unknown names yield zero.
type Variables struct {
	index  map[string]int
	names  []string
	values []int32
	limit  int
}

func NewVariables(limit int) *Variables {
	return &Variables{
		index:  make(map[string]int, limit),
		names:  make([]string, 0, limit),
		values: make([]int32, 0, limit),
		limit:  limit,
	}
}

func truncName(name string) string {
	if len(name) > MaxNameLen {
		return name[:MaxNameLen]
	}
	return name
}

// Set creates or overwrites name. Creating a variable beyond the limit fails
// and leaves the store unchanged.
func (v *Variables) Set(name string, value int32) error {
	name = truncName(name)
	if i, ok := v.index[name]; ok {
		v.values[i] = value
		return nil
	}
	if len(v.names) >= v.limit {
		return fmt.Errorf("%w: cannot add %q", ErrVariableCapacity, name)
	}
	v.index[name] = len(v.names)
	v.names = append(v.names, name)
	v.values = append(v.values, value)
	return nil
}

func (v *Variables) Get(name string) int32 {
	if i, ok := v.index[truncName(name)]; ok {
		return v.values[i]
	}
	return 0
}

func (v *Variables) Lookup(name string) (int32, bool) {
	i, ok := v.index[truncName(name)]
	if !ok {
		return 0, false
	}
	return v.values[i], true
}

func (v *Variables) Len() int { return len(v.names) }

// Each visits variables in creation order.
func (v *Variables) Each(fn func(name string, value int32)) {
	for i, n := range v.names {
		fn(n, v.values[i])
	}
}

func (v *Variables) Reset() {
	clear(v.index)
	v.names = v.names[:0]
	v.values = v.values[:0]
}
