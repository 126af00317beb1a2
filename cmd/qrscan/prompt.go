package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// termPrompter asks for content passwords on the terminal. An empty line or
// end of input cancels.
type termPrompter struct {
	in  io.Reader
	out io.Writer

	once  sync.Once
	lines chan string
}

func newTermPrompter(in io.Reader, out io.Writer) *termPrompter {
	return &termPrompter{in: in, out: out}
}

// readLines feeds lines from in; a blocked read cannot be interrupted, so a
// single reader goroutine serves every prompt.
func (p *termPrompter) readLines() <-chan string {
	p.once.Do(func() {
		p.lines = make(chan string)
		go func() {
			defer close(p.lines)
			sc := bufio.NewScanner(p.in)
			for sc.Scan() {
				p.lines <- strings.TrimRight(sc.Text(), "\r")
			}
		}()
	})
	return p.lines
}

func (p *termPrompter) PromptPassword(ctx context.Context, retry bool) (string, bool, error) {
	if retry {
		fmt.Fprintln(p.out, "Incorrect password. Try again.")
	} else {
		fmt.Fprintln(p.out, "This content is password protected.")
	}
	fmt.Fprint(p.out, "Password (empty to cancel): ")

	select {
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return "", false, ctx.Err()
	case line, ok := <-p.readLines():
		if !ok || line == "" {
			return "", false, nil
		}
		return line, true, nil
	}
}

func (p *termPrompter) Close() {}
