package domain

// StepKind — тип шага.
type StepKind string

const (
	// StepKindHTTP — сетевой вызов (leaf).
	StepKindHTTP StepKind = "http"

	// StepKindParallel — контейнер, дочерние шаги выполняются параллельно.
	StepKindParallel StepKind = "parallel"

	// StepKindSerial — контейнер, дочерние шаги выполняются по порядку.
	StepKindSerial StepKind = "serial"

	// StepKindBatch — запуск внешнего процесса (leaf).
	StepKindBatch StepKind = "batch"

	// StepKindExecutable — запуск внешнего процесса (leaf).
	// Отличается от batch только декларативно.
	StepKindExecutable StepKind = "executable"
)

// IsContainer возвращает true для контейнерных типов.
func (k StepKind) IsContainer() bool {
	return k == StepKindParallel || k == StepKindSerial
}

// IsLeaf возвращает true для шагов, выполняющих внешнее действие.
func (k StepKind) IsLeaf() bool {
	switch k {
	case StepKindHTTP, StepKindBatch, StepKindExecutable:
		return true
	default:
		return false
	}
}

// IsProcess возвращает true для типов, запускающих процесс.
func (k StepKind) IsProcess() bool {
	return k == StepKindBatch || k == StepKindExecutable
}

// IsKnown проверяет, что тип распознан.
func (k StepKind) IsKnown() bool {
	return k.IsLeaf() || k.IsContainer()
}

// Step — шаг workflow.
//
// Ссылка на владеющий Workflow не хранится в шаге:
// движок передаёт workflow параметром при обходе.
type Step struct {
	// ID — идентификатор шага, уникальный в рамках workflow.
	ID string `json:"id"`

	// Name — человекочитаемое имя.
	Name string `json:"name,omitempty"`

	// Kind — тип шага.
	Kind StepKind `json:"kind"`

	// Params — параметры шага (url, command, timeout_seconds, ...).
	Params Params `json:"params,omitempty"`

	// Steps — дочерние шаги (только для контейнеров).
	Steps []Step `json:"steps,omitempty"`
}

// DisplayName возвращает Name, если задано, иначе ID.
func (s *Step) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

func cloneSteps(steps []Step) []Step {
	if steps == nil {
		return nil
	}
	out := make([]Step, len(steps))
	for i, s := range steps {
		out[i] = Step{
			ID:     s.ID,
			Name:   s.Name,
			Kind:   s.Kind,
			Params: s.Params.Clone(),
			Steps:  cloneSteps(s.Steps),
		}
	}
	return out
}
