package engine

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

const tailLines = 5

// Command drives the engine through a task-runner executable invoked as
// `<binary> <task> <args...> <key=value...>` inside the working directory.
type Command struct {
	binary    string
	dir       string
	logger    *slog.Logger
	validator *Validator
}

func NewCommand(binary, dir string, logger *slog.Logger) *Command {
	return &Command{
		binary:    binary,
		dir:       dir,
		logger:    logger.With("engine", binary),
		validator: NewValidator(),
	}
}

func (c *Command) Invoke(ctx context.Context, call Call) error {
	if err := c.validator.Check(call); err != nil {
		return &InvocationError{Task: call.Task, Subject: call.Subject, Err: err}
	}

	logger := c.logger.With("task", call.Task)
	if call.Subject != "" {
		logger = logger.With("subject", call.Subject)
	}
	logger.DebugContext(ctx, "Invoking engine", "command", call.String())

	out, err := c.run(ctx, call.CommandLine())
	for _, line := range out {
		logger.DebugContext(ctx, line)
	}
	if err != nil {
		return &InvocationError{Task: call.Task, Subject: call.Subject, Err: withTail(err, out)}
	}

	return nil
}

func (c *Command) Header(ctx context.Context, image, keyword string) (string, error) {
	call := Call{Task: "hselect", Args: []string{image, keyword, "yes"}, Subject: image}

	out, err := c.run(ctx, call.CommandLine())
	if err != nil {
		return "", &InvocationError{Task: call.Task, Subject: image, Err: withTail(err, out)}
	}

	for _, line := range out {
		if value := strings.TrimSpace(line); value != "" {
			return value, nil
		}
	}

	return "", &InvocationError{Task: call.Task, Subject: image, Err: fmt.Errorf("keyword %s not found", keyword)}
}

func (c *Command) run(ctx context.Context, args []string) ([]string, error) {
	cmd := exec.CommandContext(ctx, c.binary, args...)
	cmd.Dir = c.dir

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()

	var lines []string
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	return lines, err
}

func withTail(err error, out []string) error {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) || len(out) == 0 {
		return err
	}

	start := len(out) - tailLines
	if start < 0 {
		start = 0
	}

	return fmt.Errorf("%w: %s", err, strings.Join(out[start:], " | "))
}
