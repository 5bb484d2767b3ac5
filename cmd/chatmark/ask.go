package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/alnah/go-chatmark/internal/chat"
	"github.com/alnah/go-chatmark/internal/store"
)

// runAsk sends one query, stores the exchange and prints the answer.
func runAsk(ctx context.Context, args []string, env *Environment) error {
	flags, rest, err := parseAskFlags(args, env.Stderr)
	if err != nil {
		return err
	}
	if err := validateFormat(flags.format); err != nil {
		return err
	}

	a, err := newApp(flags.common, env)
	if err != nil {
		return err
	}
	if flags.webSearch {
		a.cfg.API.WebSearch = true
	}
	if flags.timeout != "" {
		d, err := parseDuration("--timeout", flags.timeout)
		if err != nil {
			return err
		}
		a.cfg.API.Timeout = d
	}

	query, err := readQuery(rest, env.Stdin)
	if err != nil {
		return err
	}

	client, err := a.chatClient()
	if err != nil {
		return err
	}
	st, err := a.openStore()
	if err != nil {
		return err
	}
	p, err := newPrinter(a, flags.format)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	conv, err := askConversation(st, client, flags.conversation)
	if err != nil {
		return err
	}

	reply, err := client.Send(ctx, conv.ID, query)
	if err != nil {
		if flags.conversation == "" {
			if delErr := st.Delete(conv.ID); delErr != nil {
				a.logger.Warn("removing unused conversation", "id", conv.ID, "error", delErr)
			}
		}
		return fmt.Errorf("asking: %w", err)
	}

	if _, _, err := st.AppendMessage(conv.ID, query, true); err != nil {
		return err
	}
	if _, _, err := st.AppendMessage(conv.ID, reply.Text, false); err != nil {
		return err
	}

	fmt.Fprintf(env.Stderr, "conversation: %s\n", conv.ID)
	return p.print(ctx, reply.Text, false)
}

// askConversation returns the conversation to ask in, creating one when id
// is empty and restoring its context into client otherwise.
func askConversation(st *store.Store, client *chat.Client, id string) (store.Conversation, error) {
	if id == "" {
		return st.New("")
	}

	conv, err := st.Get(id)
	if err != nil {
		return store.Conversation{}, err
	}
	client.SetHistory(conv.ID, chatHistory(conv.Messages))
	return conv, nil
}

// readQuery joins the positional args, or reads stdin when there are none.
func readQuery(args []string, stdin io.Reader) (string, error) {
	query := strings.Join(args, " ")
	if len(args) == 0 {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("%w: stdin: %v", ErrReadInput, err)
		}
		query = string(data)
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return "", chat.ErrEmptyQuery
	}
	return query, nil
}

// parseDuration parses a positive duration flag value.
func parseDuration(name, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive duration, got %q", ErrUsage, name, value)
	}
	return d, nil
}
