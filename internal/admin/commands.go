// Package admin implements the administrator CLI: a command registry and
// a stdin REPL that dispatches to registered handlers.
package admin

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
)

// CommandFunc is the signature for admin CLI command handlers.
type CommandFunc func(args []string) (string, error)

// CommandRegistration holds a single CLI command registration.
type CommandRegistration struct {
	// Name is the command name.
	Name string
	// Description is a brief help text for the command.
	Description string
	// Handler executes the command logic.
	Handler CommandFunc
}

// Registry holds registered admin CLI commands.
type Registry struct {
	mu       sync.RWMutex
	commands []CommandRegistration
}

// NewRegistry returns an empty command registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a CLI command registration to the registry.
func (r *Registry) Register(name, description string, handler CommandFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, CommandRegistration{Name: name, Description: description, Handler: handler})
}

// Commands returns all registered CLI command registrations.
func (r *Registry) Commands() []CommandRegistration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]CommandRegistration, len(r.commands))
	copy(out, r.commands)
	return out
}

// Dispatch parses one input line and runs the matching command. The
// second return value reports whether the command name was recognised.
func (r *Registry) Dispatch(line string) (string, bool, error) {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return "", true, nil
	}
	name := parts[0]
	args := parts[1:]

	for _, cmd := range r.Commands() {
		if cmd.Name == name {
			out, err := cmd.Handler(args)
			return out, true, err
		}
	}
	return "", false, nil
}

// Help renders the list of registered commands.
func (r *Registry) Help() string {
	var sb strings.Builder
	for _, cmd := range r.Commands() {
		sb.WriteString(fmt.Sprintf("%s - %s\n", cmd.Name, cmd.Description))
	}
	return sb.String()
}

// RunREPL reads command lines from in and writes results to out until in
// is exhausted. Intended to run on its own goroutine over stdin.
func (r *Registry) RunREPL(in io.Reader, out io.Writer) {
	reader := bufio.NewReader(in)
	for {
		fmt.Fprint(out, "> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		result, found, err := r.Dispatch(line)
		switch {
		case !found:
			fmt.Fprintf(out, "Неизвестная команда: %s\n", strings.Fields(line)[0])
		case err != nil:
			fmt.Fprintf(out, "Error: %v\n", err)
		default:
			fmt.Fprint(out, result)
		}
	}
}
