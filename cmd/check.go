package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/agentic-research/fastener/internal/model"
	"github.com/agentic-research/fastener/internal/update"
)

var maxPasses int

var checkCmd = &cobra.Command{
	Use:   "check [path...]",
	Short: "Validate manifests and settle one instance of every class",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		classes, err := loadClasses(cmd.Context(), args)
		if err != nil {
			return err
		}

		// One child per class under an anonymous root, flushed like a live tree.
		root := model.New(nil)
		fasteners := 0
		for _, c := range classes {
			if err := root.AppendChild(model.New(c), c.Name); err != nil {
				return fmt.Errorf("instantiate %s: %w", c.Name, err)
			}
			fasteners += len(c.Fasteners)
		}

		s := update.New(update.Config{MaxPasses: maxPasses, Logger: slog.Default()})
		if err := s.Attach(root); err != nil {
			return err
		}
		defer func() { _ = s.Detach(root) }()
		stats, err := s.Flush(cmd.Context())
		if err != nil {
			return fmt.Errorf("settle: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "ok: %d classes, %d fasteners, %d passes, %d recohered\n",
			len(classes), fasteners, stats.Passes, stats.Recohered)
		return nil
	},
}

func init() {
	checkCmd.Flags().IntVar(&maxPasses, "max-passes", update.DefaultMaxPasses, "Update passes allowed before giving up")
	rootCmd.AddCommand(checkCmd)
}
