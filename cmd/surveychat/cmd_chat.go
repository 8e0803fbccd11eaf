package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"surveychat/internal/synthesis"
)

// maxHistoryTurns bounds the conversation window handed to the
// synthesizer. Older turns fall off the front.
const maxHistoryTurns = 12

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive question-and-answer session",
	Long: `Starts a read-eval loop. Each line is answered through the full
pipeline; previous turns are passed along so follow-up questions can use
pronouns ("and in France?").

Commands inside the session:
  /sql      show the SQL behind the last answer
  /context  show the codebook passages behind the last answer
  /reset    forget the conversation so far
  /quit     leave`,
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	fmt.Printf("%s %s - ask about the survey data (/quit to leave)\n", cfg.Name, cfg.Version)

	var history []synthesis.Turn
	var lastSQL, lastContext string

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch line {
		case "/quit", "/exit":
			return nil
		case "/reset":
			history = nil
			lastSQL, lastContext = "", ""
			fmt.Println("Conversation cleared.")
			continue
		case "/sql":
			if lastSQL == "" {
				fmt.Println("No query yet.")
			} else {
				fmt.Println(lastSQL)
			}
			continue
		case "/context":
			if lastContext == "" {
				fmt.Println("No context yet.")
			} else {
				fmt.Println(lastContext)
			}
			continue
		}

		env := a.orchestrator.Answer(ctx, line, history)
		answer := a.orchestrator.Narrate(ctx, line, env)
		fmt.Println(answer)

		lastSQL = env.SQLQuery
		lastContext = env.RetrievedContext

		history = append(history,
			synthesis.Turn{Role: "user", Content: line},
			synthesis.Turn{Role: "assistant", Content: answer},
		)
		if len(history) > maxHistoryTurns {
			history = history[len(history)-maxHistoryTurns:]
		}
	}
	return scanner.Err()
}
