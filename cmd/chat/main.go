// Command chat is an interactive streaming REPL against the configured model.
//
// Each line typed after "Q: " is sent together with the whole conversation so
// far; the answer streams back after "A: ". A line containing /bye (any case)
// unloads the model and exits.
package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dimiro1/banner"

	"github.com/MrWong99/mcpagent/internal/agent"
	"github.com/MrWong99/mcpagent/internal/app"
	"github.com/MrWong99/mcpagent/internal/config"
)

const bannerTemplate = `{{ .Title "mcpagent" "" 0 }}
model: %s / %s   type /bye to quit
`

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to the YAML configuration file (built-in defaults when empty)")
	model := flag.String("model", "", "model name, overrides providers.llm.model")
	noBanner := flag.Bool("no-banner", false, "do not print the banner")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chat: %v\n", err)
		return 1
	}
	if *model != "" {
		cfg.Providers.LLM.Model = *model
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Server.LogLevel.SlogLevel()})))

	a, err := app.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chat: %v\n", err)
		return 1
	}

	if !*noBanner {
		tpl := fmt.Sprintf(bannerTemplate, cfg.Providers.LLM.Name, displayModel(cfg.Providers.LLM.Model))
		banner.Init(os.Stdout, true, false, bytes.NewBufferString(tpl))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := repl(ctx, agent.NewSession(a.Gateway()), os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "chat: %v\n", err)
		return 1
	}
	return 0
}

// repl reads prompts from in until EOF, /bye or cancellation. A failed turn
// is reported on errOut and leaves the conversation as it was.
func repl(ctx context.Context, sess *agent.Session, in io.Reader, out, errOut io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "Q: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := scanner.Text()

		if strings.Contains(strings.ToLower(line), "/bye") {
			unloadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if err := sess.Unload(unloadCtx); err != nil {
				fmt.Fprintf(errOut, "unload failed: %v\n", err)
			}
			return nil
		}

		fmt.Fprint(out, "A: ")
		_, err := sess.Turn(ctx, line, out)
		fmt.Fprintln(out)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			fmt.Fprintf(errOut, "error: %v\n", err)
		}
	}
}

func displayModel(m string) string {
	if m == "" {
		return "(default)"
	}
	return m
}
