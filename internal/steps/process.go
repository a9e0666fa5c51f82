package steps

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/shaiso/Cascade/internal/domain"
)

// Параметры шагов batch и executable.
const (
	paramCommand    = "command"
	paramArgs       = "args"
	paramWorkingDir = "working_dir"

	// waitDelay ограничивает ожидание закрытия pipe после завершения
	// или убийства процесса.
	waitDelay = 2 * time.Second
	maxOutput = 1024 * 1024
)

// ProcessExecutor — исполнитель шагов batch и executable.
//
// Параметры:
//
//	{
//	    "command": "/usr/local/bin/export.sh",
//	    "args": ["--date", "today"],
//	    "working_dir": "/var/lib/export",
//	    "timeout_seconds": 120
//	}
//
// Процесс запускается в отдельной группе; при таймауте или отмене
// убивается вся группа, включая потомков.
type ProcessExecutor struct{}

// NewProcessExecutor создаёт ProcessExecutor.
func NewProcessExecutor() *ProcessExecutor {
	return &ProcessExecutor{}
}

// ProcessResult — результат успешного процесса.
type ProcessResult struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

// Execute запускает процесс и ждёт его завершения.
func (e *ProcessExecutor) Execute(ctx context.Context, step *domain.Step) (any, error) {
	cfg, err := parseProcessConfig(step)
	if err != nil {
		return nil, err
	}

	stepCtx, cancel := context.WithTimeoutCause(ctx, cfg.Timeout, ErrStepTimeout)
	defer cancel()

	var stdout, stderr limitedBuffer
	cmd := exec.CommandContext(stepCtx, cfg.Command, cfg.Args...)
	cmd.Dir = cfg.WorkingDir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay
	configureProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		if intErr := interruption(ctx, stepCtx, step, cfg.Timeout); intErr != nil {
			return nil, intErr
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrProcessStart, cfg.Command, err)
	}

	waitErr := cmd.Wait()

	// Таймаут и отмена проверяются до кода выхода: убитый процесс
	// тоже завершается с ошибкой.
	if intErr := interruption(ctx, stepCtx, step, cfg.Timeout); intErr != nil {
		return nil, intErr
	}

	// Процесс завершился, но потомок держит stdout/stderr открытыми:
	// решает код выхода самого процесса, оставшиеся потомки убиваются.
	if errors.Is(waitErr, exec.ErrWaitDelay) && cmd.ProcessState != nil {
		_ = killProcessGroup(cmd)
		if cmd.ProcessState.Success() {
			waitErr = nil
		} else {
			return nil, &ExitError{
				ExitCode: cmd.ProcessState.ExitCode(),
				Stdout:   stdout.String(),
				Stderr:   stderr.String(),
			}
		}
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return nil, &ExitError{
				ExitCode: exitErr.ExitCode(),
				Stdout:   stdout.String(),
				Stderr:   stderr.String(),
			}
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrProcessFailed, cfg.Command, waitErr)
	}

	return &ProcessResult{
		ExitCode: 0,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}

// processConfig — разобранные параметры процесса.
type processConfig struct {
	Command    string
	Args       []string
	WorkingDir string
	Timeout    time.Duration
}

func parseProcessConfig(step *domain.Step) (*processConfig, error) {
	command, err := step.Params.String(paramCommand)
	if err != nil {
		return nil, configError(step, err)
	}
	if command == "" {
		return nil, configError(step, fmt.Errorf("command is required"))
	}

	args, err := step.Params.StringList(paramArgs)
	if err != nil {
		return nil, configError(step, err)
	}

	dir, err := step.Params.StringOr(paramWorkingDir, "")
	if err != nil {
		return nil, configError(step, err)
	}

	timeout, err := stepTimeout(step)
	if err != nil {
		return nil, err
	}

	return &processConfig{
		Command:    command,
		Args:       args,
		WorkingDir: dir,
		Timeout:    timeout,
	}, nil
}

// ExitError — процесс завершился с ненулевым кодом.
type ExitError struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Error реализует интерфейс error.
func (e *ExitError) Error() string {
	msg := fmt.Sprintf("exit code %d", e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + truncate(e.Stderr, maxErrorBody)
	}
	return msg
}

// Is позволяет сравнивать с ErrProcessFailed.
func (e *ExitError) Is(target error) bool {
	return target == ErrProcessFailed
}

// limitedBuffer — bytes.Buffer, отбрасывающий вывод сверх maxOutput.
type limitedBuffer struct {
	buf bytes.Buffer
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if room := maxOutput - b.buf.Len(); room < len(p) {
		if room > 0 {
			b.buf.Write(p[:room])
		}
		return n, nil
	}
	b.buf.Write(p)
	return n, nil
}

func (b *limitedBuffer) String() string {
	return b.buf.String()
}
