package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show surveychat configuration and codebook status",
	RunE:  showStatus,
}

func showStatus(cmd *cobra.Command, args []string) error {
	fmt.Printf("%s %s\n\n", cfg.Name, cfg.Version)

	fmt.Printf("Model:      %s (%s)\n", cfg.LLM.Model, cfg.LLM.Provider)
	fmt.Printf("Embedding:  %s\n", cfg.Embedding.Provider)
	fmt.Printf("Table:      %q\n", cfg.Dataset.Table)
	if cfg.Backend.BaseURL != "" {
		fmt.Printf("Backend:    %s\n", cfg.Backend.BaseURL)
	} else {
		fmt.Println("Backend:    not configured")
	}

	if store, err := openStore(cfg); err != nil {
		fmt.Printf("Codebook:   unavailable (%v)\n", err)
	} else {
		defer store.Close()
		stats, err := store.Stats()
		if err != nil {
			fmt.Printf("Codebook:   error reading stats (%v)\n", err)
		} else {
			fmt.Printf("Codebook:   %v passages in %s (engine: %v, sqlite-vec: %v)\n",
				stats["passages"], stats["database_path"], stats["embedding_engine"], stats["sqlite_vec"])
		}
	}

	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()
	fmt.Printf("Tools:      %s\n", strings.Join(a.orchestrator.Tools().Names(), ", "))
	return nil
}
