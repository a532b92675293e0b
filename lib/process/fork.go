// Package process starts plugin executables with piped stdio.
package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// Process is a forked plugin executable. Its stdin/stdout carry the
// plugin protocol; stderr is forwarded to the writer given to Fork.
type Process struct {
	cmd          *exec.Cmd
	stdinWriter  *os.File
	stdoutReader *os.File

	waitErr error
	exited  chan struct{}
}

// Fork starts the executable at path. stderr may be nil.
func Fork(path string, stderr io.Writer, args ...string) (*Process, error) {
	stdinReader, stdinWriter, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdoutReader, stdoutWriter, err := os.Pipe()
	if err != nil {
		stdinReader.Close()
		stdinWriter.Close()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	cmd := exec.Command(path, args...)
	cmd.Stdin = stdinReader
	cmd.Stdout = stdoutWriter
	cmd.Stderr = stderr
	startErr := cmd.Start()

	// the child holds its own copies of these ends
	stdinReader.Close()
	stdoutWriter.Close()

	if startErr != nil {
		stdinWriter.Close()
		stdoutReader.Close()
		return nil, fmt.Errorf("failed to start process: %w", startErr)
	}

	p := &Process{
		cmd:          cmd,
		stdinWriter:  stdinWriter,
		stdoutReader: stdoutReader,
		exited:       make(chan struct{}),
	}
	go p.wait()
	return p, nil
}

func (p *Process) wait() {
	if err := p.cmd.Wait(); err != nil {
		p.waitErr = fmt.Errorf("process exited with error: %w", err)
	}
	close(p.exited)
}

// Pid returns the operating system process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

func (p *Process) Stdin() io.WriteCloser {
	return p.stdinWriter
}

func (p *Process) Stdout() io.Reader {
	return p.stdoutReader
}

// Exited is closed when the process has exited.
func (p *Process) Exited() <-chan struct{} {
	return p.exited
}

// Wait blocks until the process exits.
func (p *Process) Wait() error {
	<-p.exited
	return p.waitErr
}

// Close closes the pipes and kills the process if it is still running.
func (p *Process) Close() error {
	var errs []error
	if err := p.stdinWriter.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		errs = append(errs, fmt.Errorf("failed to close stdin writer: %w", err))
	}

	select {
	case <-p.exited:
	default:
		if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			errs = append(errs, fmt.Errorf("failed to kill process: %w", err))
		}
		<-p.exited
	}

	if err := p.stdoutReader.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		errs = append(errs, fmt.Errorf("failed to close stdout reader: %w", err))
	}
	return errors.Join(errs...)
}
