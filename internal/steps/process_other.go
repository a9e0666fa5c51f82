//go:build !unix

package steps

import "os/exec"

// configureProcessGroup: без групп процессов убивается только сам процесс
// (поведение exec.CommandContext по умолчанию).
func configureProcessGroup(cmd *exec.Cmd) {}

// killProcessGroup: потомков без группы найти нельзя.
func killProcessGroup(cmd *exec.Cmd) error { return nil }
