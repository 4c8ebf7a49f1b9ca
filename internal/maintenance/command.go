// Package maintenance hosts the admin-invokable maintenance commands.
// Commands are registered by name at startup and executed with a map of
// caller-supplied attributes; they run with the caller's principal and
// elevate internally only where required.
package maintenance

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Command is a named maintenance operation.
type Command interface {
	// Name is the stable identifier the command is invoked by.
	Name() string

	// Execute runs the command with the given attributes.
	Execute(ctx context.Context, attributes map[string]any) error
}

// CommandError reports a failed or misinvoked command.
type CommandError struct {
	Command string
	Reason  string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("maintenance command %q: %s: %v", e.Command, e.Reason, e.Err)
	}

	return fmt.Sprintf("maintenance command %q: %s", e.Command, e.Reason)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ErrUnknownCommand builds the error for an unregistered command name.
func ErrUnknownCommand(name string) *CommandError {
	return &CommandError{Command: name, Reason: "unknown command"}
}

// Registry holds the registered commands.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]Command
}

// NewRegistry creates an empty command registry.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]Command)}
}

// Register adds a command. Duplicate names panic; registration is startup
// wiring.
func (r *Registry) Register(cmd Command) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.commands[cmd.Name()]; ok {
		panic(fmt.Sprintf("maintenance: command %q already registered", cmd.Name()))
	}

	r.commands[cmd.Name()] = cmd
}

// Names returns the registered command names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Execute runs the named command with the given attributes.
func (r *Registry) Execute(ctx context.Context, name string, attributes map[string]any) error {
	r.mu.RLock()
	cmd, ok := r.commands[name]
	r.mu.RUnlock()

	if !ok {
		return ErrUnknownCommand(name)
	}

	return cmd.Execute(ctx, attributes)
}
