package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-evoprompt/infrastructure/evaluators"
	"github.com/ahrav/go-evoprompt/internal/application"
)

// sampleTasks are the starter task files init-task can write.
var sampleTasks = map[string]application.TaskConfig{
	"math": {
		Name:        "Basic math",
		Description: "Solve simple arithmetic word problems",
		TestCases: []application.TestCaseConfig{
			{Input: "What is 15 + 27?", ExpectedOutput: "42"},
			{Input: "What is 8 * 9?", ExpectedOutput: "72"},
			{Input: "What is 144 / 12?", ExpectedOutput: "12"},
			{Input: "What is 25 - 13?", ExpectedOutput: "12"},
		},
		Evaluation: application.EvaluationConfig{
			Metrics: []application.MetricConfig{
				{Type: evaluators.TypeAccuracy},
				{Type: evaluators.TypeLength, Params: map[string]any{"min_length": 1, "max_length": 20}},
			},
		},
	},
	"sentiment": {
		Name:        "Sentiment classification",
		Description: "Classify the sentiment of a sentence as positive, negative or neutral",
		TestCases: []application.TestCaseConfig{
			{Input: "Is this positive or negative: I love this product, it's great!", ExpectedOutput: "positive"},
			{Input: "Is this positive or negative: This is terrible and poor quality.", ExpectedOutput: "negative"},
			{Input: "Is this positive or negative: The package arrived on Tuesday.", ExpectedOutput: "neutral"},
		},
		Evaluation: application.EvaluationConfig{
			Metrics: []application.MetricConfig{
				{Type: evaluators.TypeAccuracy},
			},
		},
	},
}

func newInitTaskCmd(_ *app) *cobra.Command {
	var (
		kind  string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "init-task FILE",
		Short: "Write a sample task definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := writeSampleTask(args[0], kind, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s task to %s\n", kind, args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "math", "sample to write: math or sentiment")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func writeSampleTask(path, kind string, force bool) error {
	task, ok := sampleTasks[kind]
	if !ok {
		return fmt.Errorf("unknown sample task %q: want math or sentiment", kind)
	}
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists, use --force to overwrite", path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}
	}

	data, err := yaml.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode task: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write task: %w", err)
	}
	return nil
}
