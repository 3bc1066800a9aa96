package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/redoraai/redora-cli/pkg/leads"
)

const triagePrompt = "triage> "

const triageHelp = `  c  complete    d  discard    l  promote to lead
  n  next        p  previous   s <id>  select
  f <score> [subreddit]  change filter    r  reload
  h  help        q  quit`

// triageSession is the read-eval loop behind `leads triage`.
type triageSession struct {
	coord  *leads.Coordinator
	in     io.Reader
	out    io.Writer
	filter leads.Filter
}

func (t *triageSession) run(ctx context.Context) error {
	t.out = writerOrDiscard(t.out)

	if err := t.coord.OnFilterChanged(ctx, t.filter); err != nil {
		return withHint(err)
	}
	t.show(leads.CategoryNew)

	scanner := bufio.NewScanner(t.in)
	for {
		fmt.Fprint(t.out, triagePrompt)
		if !scanner.Scan() {
			fmt.Fprintln(t.out)
			return scanner.Err()
		}
		quit, err := t.exec(ctx, strings.Fields(scanner.Text()))
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			fmt.Fprintf(t.out, "error: %v\n", withHint(err))
		}
		if quit {
			return nil
		}
	}
}

// exec runs one command line. It reports whether the session should end.
func (t *triageSession) exec(ctx context.Context, fields []string) (bool, error) {
	if len(fields) == 0 {
		return false, nil
	}

	switch strings.ToLower(fields[0]) {
	case "q", "quit", "exit":
		return true, nil
	case "h", "help", "?":
		fmt.Fprintln(t.out, triageHelp)
	case "c":
		return false, t.classify(ctx, leads.StatusCompleted)
	case "d":
		return false, t.classify(ctx, leads.StatusNotRelevant)
	case "l":
		return false, t.classify(ctx, leads.StatusLead)
	case "n":
		t.coord.Next()
		writeLeadDetail(t.out, t.coord.Snapshot())
	case "p":
		t.coord.Prev()
		writeLeadDetail(t.out, t.coord.Snapshot())
	case "s":
		if len(fields) < 2 {
			return false, errors.New("usage: s <lead-id>")
		}
		if !t.coord.Select(fields[1]) {
			return false, fmt.Errorf("lead %s is not in new", fields[1])
		}
		writeLeadDetail(t.out, t.coord.Snapshot())
	case "f":
		filter, err := parseFilterArgs(t.filter, fields[1:])
		if err != nil {
			return false, err
		}
		if err := t.coord.OnFilterChanged(ctx, filter); err != nil {
			return false, err
		}
		t.filter = filter
		t.show(leads.CategoryNew)
	case "r":
		if err := t.coord.LoadAll(ctx, t.filter); err != nil {
			return false, err
		}
		t.show(leads.CategoryNew)
	default:
		return false, fmt.Errorf("unknown command %q (h for help)", fields[0])
	}
	return false, nil
}

func (t *triageSession) classify(ctx context.Context, status leads.Status) error {
	lead, ok := t.coord.Selected()
	if !ok {
		return errors.New("no lead selected")
	}
	dest, _ := leads.CategoryFor(status)
	if err := t.coord.Classify(ctx, lead.ID, status); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		fmt.Fprintf(t.out, "%s rolled back: %v\n", lead.ID, withHint(err))
		t.show(leads.CategoryNew)
		return nil
	}
	fmt.Fprintf(t.out, "%s -> %s\n", lead.ID, categoryTitle(dest))
	t.show(dest)
	return nil
}

func (t *triageSession) show(current leads.Category) {
	s := t.coord.Snapshot()
	fmt.Fprintln(t.out, countsLine(s, current))
	writeLeadDetail(t.out, s)
}

// parseFilterArgs reads "<score> [subreddit]" on top of base. A subreddit of
// "-" or "all" clears it.
func parseFilterArgs(base leads.Filter, args []string) (leads.Filter, error) {
	if len(args) == 0 {
		return base, errors.New("usage: f <score> [subreddit]")
	}
	score, err := strconv.Atoi(args[0])
	if err != nil {
		return base, fmt.Errorf("score must be a number: %q", args[0])
	}
	filter := base
	filter.RelevancyScore = score
	if len(args) > 1 {
		sub := strings.TrimPrefix(args[1], "r/")
		if sub == "-" || strings.EqualFold(sub, "all") {
			sub = ""
		}
		filter.Subreddit = sub
	}
	return filter, filter.Validate()
}
