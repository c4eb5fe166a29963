package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	companion "github.com/Protocol-Lattice/go-companion"
)

// cliOwner is the owner id of terminal conversations.
const cliOwner = "cli"

var stateLabels = map[companion.State]string{
	companion.StateAwaitingPersona: "choosing a persona",
	companion.StateAwaitingTools:   "gathering personal data",
	companion.StateAwaitingReply:   "writing a reply",
}

func newChatCmd(c *cli) *cobra.Command {
	var (
		resume   string
		progress bool
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the companion in the terminal",
		Long: `Start an interactive chat. Type "exit" to quit or "/reset" to start a
fresh conversation.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.cfg.Validate(false); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			var onState func(string, companion.State)
			if progress {
				onState = func(_ string, s companion.State) {
					if label, ok := stateLabels[s]; ok {
						fmt.Fprintln(out, dimStyle.Render("  "+label+"..."))
					}
				}
			}
			a, err := buildApp(cmd.Context(), c.cfg, c.log, onState)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					c.log.Warn("shutdown", zap.Error(err))
				}
			}()
			return chat(cmd.Context(), a.Controller, resume, cmd.InOrStdin(), out)
		},
	}
	cmd.Flags().StringVar(&resume, "resume", "", "Resume a stored conversation by id")
	cmd.Flags().BoolVar(&progress, "progress", true, "Show the pipeline stage while a reply is produced")
	return cmd
}

// chatter is the part of the controller the REPL drives.
type chatter interface {
	HandleMessage(ctx context.Context, ownerID, text string) (companion.Reply, error)
	Reset(ctx context.Context, ownerID string) error
}

func chat(ctx context.Context, ctrl *companion.Controller, resume string, in io.Reader, out io.Writer) error {
	if resume != "" {
		conv, err := ctrl.Resume(ctx, cliOwner, resume)
		if err != nil {
			return fmt.Errorf("resume %s: %w", resume, err)
		}
		fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("resumed conversation %s (%d turns)", conv.ID, len(conv.Turns))))
	}
	return repl(ctx, ctrl, in, out)
}

func repl(ctx context.Context, ctrl chatter, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, headerStyle.Render("companion")+dimStyle.Render(`type "exit" to quit`))

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(out, promptStyle.Render("you> "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case strings.EqualFold(line, "exit"):
			return nil
		case line == "/reset":
			if err := ctrl.Reset(ctx, cliOwner); err != nil {
				fmt.Fprintln(out, errorStyle.Render("reset failed: "+err.Error()))
				continue
			}
			fmt.Fprintln(out, dimStyle.Render("Starting a fresh conversation."))
			continue
		}

		reply, err := ctrl.HandleMessage(ctx, cliOwner, line)
		if err != nil && reply.Text == "" {
			fmt.Fprintln(out, errorStyle.Render("error: "+err.Error()))
			continue
		}
		printReply(out, reply)
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render("warning: "+err.Error()))
		}
	}
}

func printReply(out io.Writer, r companion.Reply) {
	header := personaStyle.Render(r.Persona)
	if r.Persona == "" {
		header = personaStyle.Render("companion")
	}
	if len(r.Tools) > 0 {
		header += " " + dimStyle.Render("using "+strings.Join(r.Tools, ", "))
	}
	fmt.Fprintln(out, header)
	fmt.Fprintln(out, replyStyle.Render(r.Text))
}
