package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"

	"github.com/agentic-research/fastener/internal/manifest"
	"github.com/agentic-research/fastener/internal/model"
)

var (
	classesJSON   bool
	classesSelect string
)

var classesCmd = &cobra.Command{
	Use:   "classes [path...]",
	Short: "List the classes declared by manifest files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		classes, err := loadClasses(cmd.Context(), args)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if classesJSON || classesSelect != "" {
			var doc any = classDoc(classes)
			if classesSelect != "" {
				x, err := jp.ParseString(classesSelect)
				if err != nil {
					return fmt.Errorf("invalid jsonpath '%s': %w", classesSelect, err)
				}
				doc = x.Get(doc)
			}
			fmt.Fprintln(out, oj.JSON(doc, &oj.Options{Indent: 2, Sort: true}))
			return nil
		}
		for _, c := range classes {
			fmt.Fprintln(out, c.Name)
			for _, d := range c.Fasteners {
				fmt.Fprintf(out, "  %-8s %s\n", d.Kind, d.Name)
			}
		}
		return nil
	},
}

func init() {
	classesCmd.Flags().BoolVar(&classesJSON, "json", false, "Print classes as JSON")
	classesCmd.Flags().StringVar(&classesSelect, "select", "", "JSONPath applied to the JSON output")
	rootCmd.AddCommand(classesCmd)
}

// classDoc is the generic JSON shape of classes.
func classDoc(classes []*model.Class) []any {
	doc := make([]any, 0, len(classes))
	for _, c := range classes {
		fasteners := make([]any, 0, len(c.Fasteners))
		for _, d := range c.Fasteners {
			fasteners = append(fasteners, map[string]any{
				"name": d.Name,
				"kind": d.Kind,
				"lazy": d.Lazy,
			})
		}
		doc = append(doc, map[string]any{
			"name":      c.Name,
			"fasteners": fasteners,
		})
	}
	return doc
}

// loadClasses builds the manifests under paths into a fresh registry.
func loadClasses(ctx context.Context, paths []string) ([]*model.Class, error) {
	m, err := manifest.Load(ctx, paths...)
	if err != nil {
		return nil, err
	}
	if len(m.Classes) == 0 {
		return nil, fmt.Errorf("no classes found in %s", strings.Join(paths, ", "))
	}
	return manifest.Build(m, model.NewClassRegistry())
}
