package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/AaronLay10/questgraph/internal/orchestrator"
	"github.com/AaronLay10/questgraph/internal/sched"
)

var validateCmd = &cobra.Command{
	Use:   "validate [graph.yaml]",
	Short: "Parse and build a graph file without running it",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := graphPath(args)
		if err != nil {
			return err
		}
		g, err := buildGraph(path, orchestrator.BuildOptions{})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: graph %q ok (%d tasks, %d pools)\n",
			path, g.Name(), len(g.Tasks()), len(g.Pools().Names()))
		return nil
	},
}

var orderCmd = &cobra.Command{
	Use:   "order [graph.yaml]",
	Short: "Print the tasks of a graph in traversal order",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := graphPath(args)
		if err != nil {
			return err
		}
		g, err := buildGraph(path, orchestrator.BuildOptions{})
		if err != nil {
			return err
		}
		for i, id := range g.CreateTaskOrder() {
			t, _ := g.Task(id)
			fmt.Fprintf(cmd.OutOrStdout(), "%3d  %s\n", i+1, t.Name)
		}
		return nil
	},
}

func graphPath(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	return cfg.Graph, nil
}

// buildGraph loads and builds path on a virtual scheduler that never runs.
func buildGraph(path string, opts orchestrator.BuildOptions) (*orchestrator.Graph, error) {
	def, err := orchestrator.LoadDefinition(path)
	if err != nil {
		return nil, err
	}
	return orchestrator.Build(def, sched.NewVirtual(time.Time{}), opts)
}

func validateGraph(path string) error {
	_, err := buildGraph(path, orchestrator.BuildOptions{})
	return err
}
