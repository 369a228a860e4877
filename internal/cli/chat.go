package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cadre-oss/hearth/internal/agent"
	apperrors "github.com/cadre-oss/hearth/internal/errors"
	"github.com/cadre-oss/hearth/internal/memory"
)

// apology is shown instead of a reply when a turn fails.
const apology = "抱歉，我现在有点累，待会儿再聊好吗？"

var (
	chatSpeaker string
	chatOnce    string
	chatShowCtx bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the companion",
	Long: `Start an interactive conversation.

Inside the conversation:
  speaker: <name>   switch who is talking (e.g. speaker: 妈妈)
  fact: <text>      remember something explicitly
  stats             show memory and backend status
  clear             forget this conversation's recent turns
  quit, exit, 退出   leave`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatSpeaker, "speaker", "", "who is talking (name or relationship from the persona)")
	chatCmd.Flags().StringVar(&chatOnce, "once", "", "send one message, print the reply and exit")
	chatCmd.Flags().BoolVar(&chatShowCtx, "show-context", false, "print the assembled context layout after each turn")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	engine, _, logger, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer logger.Close()
	defer engine.Close()

	sess := engine.NewSession(chatSpeaker)
	out := cmd.OutOrStdout()

	if chatOnce != "" {
		reply, err := engine.Chat(ctx, sess, chatOnce)
		if err != nil {
			fmt.Fprintln(out, apology)
			return err
		}
		fmt.Fprintln(out, reply.Text)
		return nil
	}

	r := &repl{engine: engine, session: sess, out: out}
	return r.run(cmd, cmd.InOrStdin())
}

type repl struct {
	engine  *agent.Engine
	session *agent.Session
	out     io.Writer
}

func (r *repl) run(cmd *cobra.Command, in io.Reader) error {
	ctx := cmd.Context()
	name := r.engine.Persona().Name
	fmt.Fprintf(r.out, "%s is here. Type 'quit' to leave.\n", name)
	if sp := r.session.Speaker(); sp.Name != "" {
		fmt.Fprintf(r.out, "(talking with %s)\n", sp.Name)
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		fmt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case isQuit(line):
			fmt.Fprintln(r.out, "再见！")
			return nil
		case line == "stats":
			s, err := r.engine.SessionStats(ctx, r.session)
			if err != nil {
				fmt.Fprintf(r.out, "stats unavailable: %v\n", err)
				continue
			}
			_ = printStats(r.out, s, false)
			continue
		case line == "clear":
			r.engine.ClearBuffer(r.session)
			fmt.Fprintln(r.out, "(short-term memory cleared)")
			continue
		}

		if rest, ok := cutCommand(line, "speaker"); ok {
			sp := r.engine.SetSpeaker(r.session, rest)
			if sp.Name == "" {
				fmt.Fprintln(r.out, "(speaker cleared)")
			} else {
				fmt.Fprintf(r.out, "(now talking with %s)\n", sp.Name)
			}
			continue
		}
		if rest, ok := cutCommand(line, "fact"); ok {
			f, err := r.engine.AddFact(ctx, rest, memory.CategoryExplicit)
			if err != nil {
				fmt.Fprintf(r.out, "could not remember that: %v\n", err)
				continue
			}
			fmt.Fprintf(r.out, "(remembered: %s)\n", f.Text)
			continue
		}

		reply, err := r.engine.Chat(ctx, r.session, line)
		if err != nil {
			fmt.Fprintf(r.out, "%s: %s\n", name, apology)
			if s := apperrors.Suggestion(err); s != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "  → %s\n", s)
			}
			continue
		}
		fmt.Fprintf(r.out, "%s: %s\n", name, reply.Text)
		if chatShowCtx && reply.Context != nil {
			printLayout(r.out, reply)
		}
	}
}

func isQuit(line string) bool {
	switch strings.ToLower(line) {
	case "quit", "exit", "退出":
		return true
	}
	return false
}

// cutCommand matches "name: rest" with an ASCII or full-width colon.
func cutCommand(line, name string) (string, bool) {
	for _, sep := range []string{":", "："} {
		if rest, ok := strings.CutPrefix(line, name+sep); ok {
			return strings.TrimSpace(rest), true
		}
	}
	return "", false
}

func printLayout(w io.Writer, reply *agent.Reply) {
	c := reply.Context
	fmt.Fprintf(w, "  [context %d/%d tokens via %s in %s", c.Total, c.Budget, reply.Backend, reply.Duration.Round(1e6))
	if len(c.Degraded) > 0 {
		fmt.Fprint(w, ", degraded")
	}
	fmt.Fprintln(w, "]")
	for _, seg := range c.Segments {
		fmt.Fprintf(w, "    %-8s %-9s %4d tokens", seg.Kind, seg.Role, seg.Tokens)
		if seg.Items > 0 {
			fmt.Fprintf(w, "  (%d items)", seg.Items)
		}
		fmt.Fprintln(w)
	}
}
