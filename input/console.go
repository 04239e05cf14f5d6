// Package input provides askers that obtain missing values from a human:
// Console for terminals and Broker for answers delivered out of band.
package input

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	ai "github.com/spetersoncode/toolflow"
)

// ErrClosed is returned when the input stream ended before an answer arrived.
var ErrClosed = errors.New("input: stream closed")

// Console asks questions on a writer and reads answers line by line.
// Lines are read by a single background goroutine so a cancelled Ask does
// not lose the next answer.
type Console struct {
	w     io.Writer
	r     io.Reader
	once  sync.Once
	lines chan string
	mu    sync.Mutex
}

var _ ai.Asker = (*Console)(nil)

// NewConsole creates a Console reading from r and writing prompts to w.
func NewConsole(r io.Reader, w io.Writer) *Console {
	return &Console{r: r, w: w}
}

// Ask writes prompt (or a default question) and waits for one line.
func (c *Console) Ask(ctx context.Context, field string, capability ai.Capability, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.once.Do(c.start)

	if prompt == "" {
		fmt.Fprintf(c.w, "I need %q to run %q. Please provide: ", field, capability.Name)
	} else {
		fmt.Fprintf(c.w, "%s\n> ", prompt)
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-c.lines:
		if !ok {
			return "", ErrClosed
		}
		return strings.TrimSpace(line), nil
	}
}

// ReadLine waits for the next line of input. It shares the reader with Ask
// so a REPL and the asker can use the same terminal.
func (c *Console) ReadLine(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.once.Do(c.start)

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-c.lines:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	}
}

func (c *Console) start() {
	c.lines = make(chan string)
	go func() {
		defer close(c.lines)
		scanner := bufio.NewScanner(c.r)
		for scanner.Scan() {
			c.lines <- scanner.Text()
		}
	}()
}
