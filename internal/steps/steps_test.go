package steps

import (
	"context"
	"errors"
	"testing"
	"unicode/utf8"

	"github.com/shaiso/Cascade/internal/domain"
)

// Registry Tests

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	// Пустой реестр
	if len(r.Kinds()) != 0 {
		t.Errorf("expected empty registry")
	}

	// Регистрация
	noop := ExecutorFunc(func(ctx context.Context, step *domain.Step) (any, error) {
		return "ok", nil
	})
	r.Register(domain.StepKindHTTP, noop)

	exec, err := r.Get(domain.StepKindHTTP)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := exec.Execute(context.Background(), &domain.Step{ID: "s"})
	if got != "ok" {
		t.Errorf("expected ok, got %v", got)
	}

	// Несуществующий тип
	_, err = r.Get("unknown")
	if !errors.Is(err, ErrStepNotFound) {
		t.Errorf("expected ErrStepNotFound, got %v", err)
	}

	// Unregister
	r.Unregister(domain.StepKindHTTP)
	if r.Has(domain.StepKindHTTP) {
		t.Error("should not have http after unregister")
	}
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()

	for _, kind := range []domain.StepKind{domain.StepKindHTTP, domain.StepKindBatch, domain.StepKindExecutable} {
		if !r.Has(kind) {
			t.Errorf("default registry should have %s", kind)
		}
	}

	// Контейнеры обрабатывает движок, не реестр
	if r.Has(domain.StepKindParallel) || r.Has(domain.StepKindSerial) {
		t.Error("containers should not be registered")
	}

	batch, _ := r.Get(domain.StepKindBatch)
	executable, _ := r.Get(domain.StepKindExecutable)
	if batch != executable {
		t.Error("batch and executable should share the process executor")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 3); got != "abc..." {
		t.Errorf("expected abc..., got %q", got)
	}
	if got := truncate("ab", 3); got != "ab" {
		t.Errorf("expected ab, got %q", got)
	}

	// Кириллица — 2 байта на букву; третий байт приходится на середину руны
	got := truncate("привет", 3)
	if got != "п..." {
		t.Errorf("expected п..., got %q", got)
	}
	if !utf8.ValidString(got) {
		t.Errorf("truncated string is not valid UTF-8: %q", got)
	}
}
