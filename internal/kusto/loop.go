package kusto

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// TranslateFunc turns text into a query.
type TranslateFunc func(ctx context.Context, text string) (string, error)

// QueryFunc runs a query.
type QueryFunc func(ctx context.Context, query string) (*Table, error)

// Loop reads requests line by line from In until "exit" or end of input,
// translating and running each one. Failures are printed and the loop
// continues.
type Loop struct {
	In        io.Reader
	Out       io.Writer
	Translate TranslateFunc
	Query     QueryFunc
}

// scanned is one line read from In, or the end of input when done is set.
type scanned struct {
	text string
	err  error
	done bool
}

// Run drives the loop. "exit" and EOF return nil; a read error or context
// cancellation is returned, even while waiting for input.
func (l *Loop) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan scanned)
	go l.scan(ctx, lines)

	for {
		fmt.Fprint(l.Out, "Please input the requirement for the query: ")

		var line scanned
		select {
		case <-ctx.Done():
			fmt.Fprintln(l.Out)
			return ctx.Err()
		case line = <-lines:
		}
		if line.done {
			fmt.Fprintln(l.Out)
			return line.err
		}

		text := strings.TrimSpace(line.text)
		switch {
		case strings.EqualFold(text, "exit"):
			return nil
		case text == "":
			continue
		}
		l.handle(ctx, text)
	}
}

// scan feeds lines from In to out. A read blocked on In outlives ctx; it is
// abandoned when Run returns.
func (l *Loop) scan(ctx context.Context, out chan<- scanned) {
	scanner := bufio.NewScanner(l.In)
	for scanner.Scan() {
		select {
		case out <- scanned{text: scanner.Text()}:
		case <-ctx.Done():
			return
		}
	}
	select {
	case out <- scanned{err: scanner.Err(), done: true}:
	case <-ctx.Done():
	}
}

func (l *Loop) handle(ctx context.Context, text string) {
	fmt.Fprintln(l.Out, "Generating kusto query......")
	query, err := l.Translate(ctx, text)
	if err != nil {
		fmt.Fprintf(l.Out, "Get exception: %v\n", err)
		return
	}
	fmt.Fprintf(l.Out, "The generated kusto query is:\n%s\n", query)

	t, err := l.Query(ctx, query)
	if err != nil {
		fmt.Fprintf(l.Out, "Get exception: %v\n", err)
		return
	}
	fmt.Fprintf(l.Out, "The query result is:\n%s\n", Render(t))
}
