package engine

import (
	"fmt"
	"strings"

	"github.com/shaiso/Cascade/internal/domain"
)

// DetectCycles обходит дерево шагов в глубину по рёбрам parent → child
// и сообщает о каждом шаге, ID которого повторяется на пути от корня.
//
// Пустой результат — циклов нет.
func DetectCycles(wf *domain.Workflow) []string {
	if wf == nil {
		return nil
	}

	var problems []string
	var path []string
	onPath := make(map[string]bool)

	var visit func(step *domain.Step)
	visit = func(step *domain.Step) {
		if step.ID != "" && onPath[step.ID] {
			cycle := append(append([]string{}, path[indexOf(path, step.ID):]...), step.ID)
			problems = append(problems, NewValidationError(step.ID, "steps",
				fmt.Sprintf("cyclic dependency: %s", strings.Join(cycle, " -> ")),
				ErrCyclicDependency).Error())
			return
		}

		if step.ID != "" {
			onPath[step.ID] = true
			path = append(path, step.ID)
			defer func() {
				delete(onPath, step.ID)
				path = path[:len(path)-1]
			}()
		}

		for i := range step.Steps {
			visit(&step.Steps[i])
		}
	}

	for i := range wf.Steps {
		visit(&wf.Steps[i])
	}

	return problems
}

func indexOf(items []string, s string) int {
	for i, item := range items {
		if item == s {
			return i
		}
	}
	return 0
}
