package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var askJSON bool

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a single question about the survey data",
	Long: `Runs one full pipeline pass for the given question and prints the
narrated answer together with the SQL that produced it.

Examples:
  surveychat ask "How many respondents per country?"
  surveychat ask --json "Average trust in parliament by country"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askJSON, "json", false, "Print the raw response envelope as JSON")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	question := strings.Join(args, " ")
	logger.Info("Answering question", zap.String("question", question))

	env := a.orchestrator.Answer(ctx, question, nil)

	if askJSON {
		out, err := json.MarshalIndent(env, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode envelope: %w", err)
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Println(a.orchestrator.Narrate(ctx, question, env))
	if env.SQLQuery != "" {
		fmt.Printf("\nSQL:\n%s\n", env.SQLQuery)
	}
	if env.IsError() {
		os.Exit(1)
	}
	return nil
}
