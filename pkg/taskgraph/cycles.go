package taskgraph

import (
	"fmt"
	"sort"

	"conductor/pkg/model"
)

type color int

const (
	white color = iota // not visited
	gray               // on the current path
	black              // fully explored
)

// frame is one step of the explicit DFS stack: a node and the index of the
// next dependency edge to follow from it.
type frame struct {
	id   string
	next int
}

// CheckCircularDeps detects dependency cycles with an iterative three-color
// depth-first search. The explicit stack keeps arbitrarily deep graphs safe
// from stack overflow. Edges to undeclared tasks are skipped here; the
// reference checks report those separately.
func CheckCircularDeps(tasks []*model.Task) []string {
	deps := make(map[string][]string, len(tasks))
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if _, ok := deps[t.ID]; !ok {
			ids = append(ids, t.ID)
		}
		deps[t.ID] = t.DependsOn
	}
	sort.Strings(ids)

	colors := make(map[string]color, len(ids))
	var errs []string

	for _, start := range ids {
		if colors[start] != white {
			continue
		}
		stack := []frame{{id: start}}
		colors[start] = gray

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			edges := deps[top.id]

			if top.next >= len(edges) {
				colors[top.id] = black
				stack = stack[:len(stack)-1]
				continue
			}

			child := edges[top.next]
			top.next++

			if _, declared := deps[child]; !declared {
				continue
			}
			switch colors[child] {
			case gray:
				errs = append(errs, fmt.Sprintf("circular dependency: %s", cyclePath(stack, child)))
			case white:
				colors[child] = gray
				stack = append(stack, frame{id: child})
			}
		}
	}

	return errs
}

// cyclePath renders the cycle closed by an edge from the stack top back to
// repeated, e.g. "T01 -> T02 -> T01".
func cyclePath(stack []frame, repeated string) string {
	start := 0
	for i, f := range stack {
		if f.id == repeated {
			start = i
			break
		}
	}
	path := ""
	for _, f := range stack[start:] {
		path += f.id + " -> "
	}
	return path + repeated
}
