package sysexec

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Recorder is a Runner that records every command instead of executing it.
// Responses are scripted per command prefix with On; unmatched commands
// succeed with empty output.
type Recorder struct {
	mu        sync.Mutex
	commands  []Command
	stdins    []string
	responses []response
}

type response struct {
	prefix string
	result Result
	err    error
	hook   func(Command)
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// On scripts the result for every command whose rendered line starts with prefix.
// A non-nil err is wrapped into a *CommandError with exit status 1.
func (r *Recorder) On(prefix string, result Result, err error) *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses = append(r.responses, response{prefix: prefix, result: result, err: err})
	return r
}

// Do registers a side effect (e.g. creating files a real command would create)
// for commands starting with prefix.
func (r *Recorder) Do(prefix string, hook func(Command)) *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses = append(r.responses, response{prefix: prefix, hook: hook})
	return r
}

// Run records cmd and returns the scripted response.
func (r *Recorder) Run(_ context.Context, cmd Command) (Result, error) {
	stdin := ""
	if cmd.Stdin != nil {
		b, _ := io.ReadAll(cmd.Stdin)
		stdin = string(b)
	}

	r.mu.Lock()
	r.commands = append(r.commands, cmd)
	r.stdins = append(r.stdins, stdin)
	matched := make([]response, 0, 2)
	line := cmd.String()
	for _, resp := range r.responses {
		if strings.HasPrefix(line, resp.prefix) {
			matched = append(matched, resp)
		}
	}
	r.mu.Unlock()

	var result Result
	for _, resp := range matched {
		if resp.hook != nil {
			resp.hook(cmd)
			continue
		}
		if resp.err != nil {
			return resp.result, &CommandError{
				Command:  line,
				ExitCode: 1,
				Stderr:   strings.TrimSpace(resp.result.Stderr),
				Err:      resp.err,
			}
		}
		result = resp.result
	}
	return result, nil
}

// Commands returns the rendered command lines in execution order.
func (r *Recorder) Commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	lines := make([]string, len(r.commands))
	for i, c := range r.commands {
		lines[i] = c.String()
	}
	return lines
}

// Calls returns the recorded commands.
func (r *Recorder) Calls() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Command(nil), r.commands...)
}

// Stdin returns what was fed to the i-th command's standard input.
func (r *Recorder) Stdin(i int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 || i >= len(r.stdins) {
		panic(fmt.Sprintf("sysexec: no recorded command at index %d", i))
	}
	return r.stdins[i]
}
