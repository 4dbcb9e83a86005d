// README: Interactive chat loop: one line per turn against a single in-memory session.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"wayfarer/internal/modules/session"
	"wayfarer/internal/service"
)

const chatSession = "cli"

func runChat(ctx context.Context, conv *service.Conversation, in io.Reader, out io.Writer, turnTimeout time.Duration) error {
	sc := bufio.NewScanner(in)
	fmt.Fprintln(out, "Where would you like to go? (/quit to exit)")
	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			done, err := chatCommand(ctx, conv, line, out)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
			continue
		}

		turnCtx, cancel := context.WithTimeout(ctx, turnTimeout)
		resp, err := conv.Parse(turnCtx, line, chatSession, "")
		cancel()
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		fmt.Fprintln(out, resp.Reply)
	}
}

// chatCommand handles a slash command and reports whether the loop should stop.
func chatCommand(ctx context.Context, conv *service.Conversation, line string, out io.Writer) (bool, error) {
	switch strings.ToLower(strings.Fields(line)[0]) {
	case "/quit", "/exit":
		return true, nil
	case "/plan":
		st, err := conv.State(ctx, chatSession)
		if errors.Is(err, session.ErrNotFound) || (err == nil && st.CurrentPlan == nil) {
			fmt.Fprintln(out, "No plan yet.")
			return false, nil
		}
		if err != nil {
			return false, err
		}
		fmt.Fprintln(out, st.CurrentPlan.Summary())
	case "/undo":
		st, err := conv.Undo(ctx, chatSession)
		switch {
		case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrNothingToUndo):
			fmt.Fprintln(out, "Nothing to undo.")
		case err != nil:
			return false, err
		case st.CurrentPlan == nil:
			fmt.Fprintln(out, "Back to an empty plan.")
		default:
			fmt.Fprintln(out, "Back to: "+st.CurrentPlan.Summary())
		}
	case "/clear":
		if err := conv.Clear(ctx, chatSession); err != nil {
			return false, err
		}
		fmt.Fprintln(out, "Cleared.")
	default:
		fmt.Fprintf(out, "unknown command %s\n", line)
	}
	return false, nil
}
