// Package mux combines separately downloaded audio and video tracks with an
// ffmpeg-compatible executable.
package mux

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"

	"github.com/ytget/ytfetch/errs"
	"github.com/ytget/ytfetch/internal/logger"
)

// DefaultCommand is the executable looked up on PATH when none is configured.
const DefaultCommand = "ffmpeg"

// Args returns the muxer arguments: video is copied verbatim and audio is
// re-encoded to AAC.
func Args(videoPath, audioPath, outputPath string) []string {
	return []string{
		"-i", videoPath,
		"-i", audioPath,
		"-c:v", "copy",
		"-c:a", "aac",
		"-strict", "experimental",
		outputPath,
	}
}

// Runner starts a process and waits for it. ExitCode is -1 when the process
// could not be started.
type Runner interface {
	Run(ctx context.Context, name string, args []string, stdout, stderr io.Writer) (exitCode int, err error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, name string, args []string, stdout, stderr io.Writer) (int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	err := cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0, nil
	case errors.As(err, &exitErr):
		return exitErr.ExitCode(), err
	default:
		return -1, err
	}
}

// Muxer invokes the external mux step.
//
// By default a failing muxer is only logged and Mux returns nil; with
// Strict set the failure is returned as errs.ErrMuxFailed.
type Muxer struct {
	Command string
	Strict  bool
	Runner  Runner
	// Stdout and Stderr receive the muxer's own output; nil discards it.
	Stdout io.Writer
	Stderr io.Writer
	Log    *logger.ComponentLogger
}

// New returns a Muxer running command through os/exec.
func New(command string, strict bool) *Muxer {
	if command == "" {
		command = DefaultCommand
	}
	return &Muxer{
		Command: command,
		Strict:  strict,
		Runner:  ExecRunner{},
		Log:     logger.WithComponent(logger.ComponentMux),
	}
}

// Result describes a finished mux invocation.
type Result struct {
	Output   string
	ExitCode int
}

// Mux runs the muxer to completion and reports its exit code.
func (m *Muxer) Mux(ctx context.Context, videoPath, audioPath, outputPath string) (Result, error) {
	runner := m.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	command := m.Command
	if command == "" {
		command = DefaultCommand
	}
	log := m.Log
	if log == nil {
		log = logger.WithComponent(logger.ComponentMux)
	}

	args := Args(videoPath, audioPath, outputPath)
	log.Debug("running muxer", map[string]interface{}{"command": command, "args": args})

	var tail bytes.Buffer
	stderr := io.Writer(&tail)
	if m.Stderr != nil {
		stderr = io.MultiWriter(m.Stderr, &tail)
	}
	stdout := m.Stdout
	if stdout == nil {
		stdout = io.Discard
	}

	code, err := runner.Run(ctx, command, args, stdout, stderr)
	res := Result{Output: outputPath, ExitCode: code}
	if err == nil {
		log.Info("mux complete", map[string]interface{}{"output": outputPath})
		return res, nil
	}

	fields := map[string]interface{}{"exit_code": code, "error": err.Error(), "output": outputPath}
	if s := lastLine(tail.Bytes()); s != "" {
		fields["stderr"] = s
	}
	log.Warn("muxer failed", fields)
	if m.Strict {
		return res, fmt.Errorf("%s exited with code %d: %w", command, code, errs.ErrMuxFailed)
	}
	return res, nil
}

func lastLine(b []byte) string {
	b = bytes.TrimRight(b, "\r\n ")
	if i := bytes.LastIndexAny(b, "\r\n"); i >= 0 {
		b = b[i+1:]
	}
	return string(b)
}
