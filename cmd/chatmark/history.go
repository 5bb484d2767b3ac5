package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/alnah/go-chatmark/internal/dateutil"
	"github.com/alnah/go-chatmark/internal/store"
)

// runHistory lists conversations, prints one, or deletes one.
func runHistory(ctx context.Context, args []string, env *Environment) error {
	flags, rest, err := parseHistoryFlags(args, env.Stderr)
	if err != nil {
		return err
	}
	if err := validateFormat(flags.format); err != nil {
		return err
	}
	if len(rest) > 1 {
		return fmt.Errorf("%w: history takes at most one conversation ID", ErrUsage)
	}
	if flags.delete && len(rest) == 0 {
		return fmt.Errorf("%w: --delete needs a conversation ID", ErrUsage)
	}

	a, err := newApp(flags.common, env)
	if err != nil {
		return err
	}
	st, err := a.openStore()
	if err != nil {
		return err
	}

	switch {
	case len(rest) == 0:
		return listConversations(st, env)
	case flags.delete:
		if err := st.Delete(rest[0]); err != nil {
			return err
		}
		fmt.Fprintf(env.Stdout, "Deleted %s\n", rest[0])
		return nil
	default:
		return showConversation(ctx, a, st, rest[0], flags.format)
	}
}

func listConversations(st *store.Store, env *Environment) error {
	convs, err := st.List()
	if err != nil {
		return err
	}
	if len(convs) == 0 {
		fmt.Fprintln(env.Stdout, "No conversations yet.")
		return nil
	}

	now := env.Now()
	tw := tabwriter.NewWriter(env.Stdout, 0, 0, 2, ' ', 0)
	for _, c := range convs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", c.ID, historyLabel(c.Timestamp, now), c.Title, len(c.Messages))
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteOutput, err)
	}
	return nil
}

func showConversation(ctx context.Context, a *app, st *store.Store, id, format string) error {
	conv, err := st.Get(id)
	if err != nil {
		return err
	}

	p, err := newPrinter(a, format)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	now := a.env.Now()
	fmt.Fprintf(a.env.Stdout, "%s (%s)\n", conv.Title, historyLabel(conv.Timestamp, now))
	for _, m := range conv.Messages {
		who := "Assistant"
		if m.IsUser {
			who = "You"
		}
		fmt.Fprintf(a.env.Stdout, "\n%s, %s:\n", who, historyLabel(m.Timestamp, now))
		if err := p.print(ctx, m.Text, m.IsUser); err != nil {
			return err
		}
	}
	return nil
}

// historyLabel formats ts like the UI's conversation list.
func historyLabel(ts, now time.Time) string {
	label, err := dateutil.HistoryLabel(ts, now, "")
	if err != nil {
		return ts.Format(time.DateOnly)
	}
	return label
}
