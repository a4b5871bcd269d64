// Command ask sends a single prompt to the configured model and prints the
// reply.
//
//	ask "Who are you?"
//	ask -tools "北京天气怎么样?"
//	echo "Who are you?" | ask
//
// Without arguments the prompt is read from a piped stdin.
// With -tools the prompt runs through the agent coordinator, so the model may
// call the configured tools once before answering.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/MrWong99/mcpagent/internal/app"
	"github.com/MrWong99/mcpagent/internal/config"
	"github.com/MrWong99/mcpagent/pkg/types"
)

const defaultPrompt = "Who are you?"

// maxStdinPrompt bounds a prompt read from stdin.
const maxStdinPrompt = 1 << 20

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to the YAML configuration file (built-in defaults when empty)")
	model := flag.String("model", "", "model name, overrides providers.llm.model")
	withTools := flag.Bool("tools", false, "let the model call the configured tools")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ask: %v\n", err)
		return 1
	}
	if *model != "" {
		cfg.Providers.LLM.Model = *model
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Server.LogLevel.SlogLevel()})))

	a, err := app.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ask: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prompt, err := promptFrom(flag.Args(), pipedStdin())
	if err != nil {
		fmt.Fprintf(os.Stderr, "ask: reading stdin: %v\n", err)
		return 1
	}
	if err := ask(ctx, a, prompt, *withTools, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "ask: %v\n", err)
		return 1
	}
	return 0
}

// promptFrom prefers the arguments, then stdin, then [defaultPrompt]. A nil
// stdin is skipped.
func promptFrom(args []string, stdin io.Reader) (string, error) {
	if p := strings.TrimSpace(strings.Join(args, " ")); p != "" {
		return p, nil
	}
	if stdin != nil {
		data, err := io.ReadAll(io.LimitReader(stdin, maxStdinPrompt))
		if err != nil {
			return "", err
		}
		if p := strings.TrimSpace(string(data)); p != "" {
			return p, nil
		}
	}
	return defaultPrompt, nil
}

// pipedStdin returns os.Stdin unless it is a terminal.
func pipedStdin() io.Reader {
	fi, err := os.Stdin.Stat()
	if err != nil || fi.Mode()&os.ModeCharDevice != 0 {
		return nil
	}
	return os.Stdin
}

func ask(ctx context.Context, a *app.App, prompt string, withTools bool, out io.Writer) error {
	var reply string
	if withTools {
		r, err := a.Chat(ctx, prompt)
		if err != nil {
			return err
		}
		reply = r
	} else {
		r, err := a.Gateway().Send(ctx, []types.Message{{Role: types.RoleUser, Content: prompt}}, nil)
		if err != nil {
			return err
		}
		reply = r.Content
	}
	_, err := fmt.Fprintln(out, reply)
	return err
}
