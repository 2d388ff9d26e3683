package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kvasilopoulos/contact-center/internal/prompts"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dir string
	var verbose bool

	root := &cobra.Command{
		Use:           "promptctl",
		Short:         "Inspect and validate classification prompt directories",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dir, "dir", "prompts", "prompt directory")
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "log every loaded file")

	load := func(cmd *cobra.Command) (*prompts.Registry, prompts.LoadResult, error) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
		reg := prompts.NewRegistry(prompts.WithLogger(logger))
		res, err := prompts.LoadDir(reg, dir, logger)
		return reg, res, err
	}

	root.AddCommand(newValidateCmd(load))
	root.AddCommand(newListCmd(load))
	root.AddCommand(newRenderCmd(load))
	return root
}

type loadFunc func(cmd *cobra.Command) (*prompts.Registry, prompts.LoadResult, error)

func newValidateCmd(load loadFunc) *cobra.Command {
	var promptID string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load the directory strictly; fail on any skipped file or dangling experiment",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, res, err := load(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			var problems []string
			for _, s := range res.Skipped {
				problems = append(problems, fmt.Sprintf("%s: %v", s.Path, s.Err))
			}
			for _, err := range prompts.CheckExperiments(reg, promptID) {
				problems = append(problems, err.Error())
			}
			if res.Templates == 0 {
				problems = append(problems, "no templates found")
			}

			if len(problems) > 0 {
				for _, p := range problems {
					fmt.Fprintln(out, "FAIL", p)
				}
				return fmt.Errorf("%d problem(s) found", len(problems))
			}
			fmt.Fprintf(out, "ok: %d templates, %d experiments\n", res.Templates, res.Experiments)
			return nil
		},
	}
	cmd.Flags().StringVar(&promptID, "prompt-id", "classification", "prompt id experiments must resolve against")
	return cmd
}

func newListCmd(load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List prompt ids, versions and experiments",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, _, err := load(cmd)
			if err != nil {
				return err
			}
			writeListing(cmd.OutOrStdout(), reg)
			return nil
		},
	}
}

func writeListing(out io.Writer, reg *prompts.Registry) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROMPT\tVERSION\tACTIVE")
	for _, id := range reg.ListPrompts() {
		active, _ := reg.GetActiveVersion(id)
		for _, v := range reg.ListVersions(id) {
			mark := ""
			if v == active {
				mark = "*"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", id, v, mark)
		}
	}
	tw.Flush()

	exps := reg.Experiments()
	if len(exps) == 0 {
		return
	}
	fmt.Fprintln(out)
	tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EXPERIMENT\tACTIVE\tVARIANTS")
	for _, e := range exps {
		variants := make([]string, 0, len(e.Variants))
		for _, v := range e.Variants {
			variants = append(variants, fmt.Sprintf("%s=%s(%.2f)", v.Name, v.Version, v.Traffic))
		}
		fmt.Fprintf(tw, "%s\t%v\t%s\n", e.ID, e.Active, strings.Join(variants, " "))
	}
	tw.Flush()
}

func newRenderCmd(load loadFunc) *cobra.Command {
	var id, version string
	var vars []string
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Print the rendered user prompt",
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseVars(vars)
			if err != nil {
				return err
			}
			reg, _, err := load(cmd)
			if err != nil {
				return err
			}
			tmpl, err := reg.Get(id, version)
			if err != nil {
				return err
			}
			out, err := tmpl.RenderUserPrompt(values)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", tmpl.Key(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "classification", "prompt id")
	cmd.Flags().StringVar(&version, "version", "", "prompt version (default: active)")
	cmd.Flags().StringArrayVar(&vars, "var", nil, "template variable as key=value, repeatable")
	return cmd
}

func parseVars(raw []string) (map[string]any, error) {
	values := make(map[string]any, len(raw))
	for _, kv := range raw {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, errors.New("invalid --var " + kv + ", want key=value")
		}
		values[k] = v
	}
	return values, nil
}
