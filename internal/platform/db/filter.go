package db

import (
	"fmt"
	"strings"
)

// Filter accumulates WHERE conditions with positional arguments. Each condition
// takes one argument and refers to it with a %[1]d verb, e.g. "status = $%[1]d".
type Filter struct {
	conds []string
	args  []any
}

// Add appends a condition bound to arg.
func (f *Filter) Add(cond string, arg any) {
	f.args = append(f.args, arg)
	f.conds = append(f.conds, fmt.Sprintf(cond, len(f.args)))
}

// AddRaw appends a condition without arguments.
func (f *Filter) AddRaw(cond string) {
	f.conds = append(f.conds, cond)
}

// Where renders the WHERE clause, or an empty string when there are no conditions.
func (f *Filter) Where() string {
	if len(f.conds) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(f.conds, " AND ")
}

// Args returns the bound arguments.
func (f *Filter) Args() []any {
	return f.args
}

// Page appends LIMIT/OFFSET placeholders and returns the clause with the full argument list.
func (f *Filter) Page(limit, offset int) (string, []any) {
	n := len(f.args)
	args := append(append([]any{}, f.args...), limit, offset)
	return fmt.Sprintf("LIMIT $%d OFFSET $%d", n+1, n+2), args
}
