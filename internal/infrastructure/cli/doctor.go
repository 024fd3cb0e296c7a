package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/felixgeelhaar/milestone/pkg/domain/roadmap"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the configuration, the stored roadmap and the remote store",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Running Milestone Doctor...")

		services, err := loadServicesForCurrentDir()
		if err != nil {
			fmt.Fprintf(out, "Checking Configuration... FAIL\n  Error: %v\n", err)
			return NewCLIError("doctor found issues", "Fix .milestone/config.yaml or run 'milestone config init'", err)
		}
		ws := services.Workspace
		cfg := ws.Config

		hasIssues := false
		check := func(name string, fn func() error) {
			fmt.Fprintf(out, "Checking %s... ", name)
			if err := fn(); err != nil {
				fmt.Fprintf(out, "FAIL\n  Error: %v\n", err)
				hasIssues = true
			} else {
				fmt.Fprintf(out, "PASS\n")
			}
		}

		check("Configuration", func() error {
			return cfg.Validate()
		})

		validate := func(snap roadmap.Snapshot) error {
			if err := snap.Validate(); err != nil {
				return err
			}
			return nil
		}

		if ws.Shared() {
			var fetched roadmap.Snapshot
			check(fmt.Sprintf("Remote store (%s)", ws.Remote.Endpoint()), func() error {
				ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Remote.Timeout+time.Second)
				defer cancel()
				start := time.Now()
				snap, err := ws.Remote.Fetch(ctx)
				if errors.Is(err, roadmap.ErrNotFound) {
					fmt.Fprintf(out, "(empty, will be seeded on first sync) ")
					return nil
				}
				if err != nil {
					return err
				}
				fetched = snap
				fmt.Fprintf(out, "(%d tasks, %s) ", len(snap), time.Since(start).Round(time.Millisecond))
				return nil
			})
			if fetched != nil {
				check("Remote roadmap structure", func() error { return validate(fetched) })
			}
		} else {
			check(fmt.Sprintf("Local roadmap (%s)", ws.Store.Path()), func() error {
				snap, err := ws.Store.Read()
				if errors.Is(err, os.ErrNotExist) {
					fmt.Fprintf(out, "(not written yet, bundled roadmap in use) ")
					return nil
				}
				if err != nil {
					return err
				}
				return validate(snap)
			})
		}

		check(fmt.Sprintf("AI provider (%s)", services.Provider.ID()), func() error {
			if services.ProviderErr != nil {
				return services.ProviderErr
			}
			switch cfg.AI.Provider {
			case "gemini", "":
				if os.Getenv("GEMINI_API_KEY") == "" {
					return fmt.Errorf("GEMINI_API_KEY is not set; advice will use the fallback hint")
				}
			case "openai":
				if os.Getenv("OPENAI_API_KEY") == "" {
					return fmt.Errorf("OPENAI_API_KEY is not set; advice will use the fallback hint")
				}
			}
			return nil
		})

		if hasIssues {
			fmt.Fprintln(out, "\nDoctor found issues.")
			return NewCLIError("doctor found issues", "See the failed checks above", nil)
		}
		fmt.Fprintln(out, "\nAll checks passed.")
		return nil
	},
}

func init() {
	RootCmd.AddCommand(doctorCmd)
}
