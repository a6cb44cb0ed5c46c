package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-evoprompt/internal/application"
	"github.com/ahrav/go-evoprompt/internal/domain"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("EVOPROMPT_LOG_LEVEL", "error")

	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestWriteSampleTask(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks", "math.yaml")

	require.NoError(t, writeSampleTask(path, "math", false))

	loader, err := application.NewTaskLoader(application.NewDefaultMetricRegistry(), nil)
	require.NoError(t, err)
	task, err := loader.LoadFromFile(t.Context(), path)
	require.NoError(t, err)
	assert.Equal(t, "Basic math", task.Name)
	assert.Len(t, task.TestCases, 4)
	assert.Len(t, task.Metrics, 2)

	err = writeSampleTask(path, "math", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	require.NoError(t, writeSampleTask(path, "sentiment", true))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Sentiment classification")

	assert.Error(t, writeSampleTask(filepath.Join(dir, "x.yaml"), "poetry", false))
}

func TestInitTaskCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentiment.yaml")
	out, err := execute(t, "init-task", path, "--kind", "sentiment")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote sentiment task")
	assert.FileExists(t, path)
}

func TestRunCmd_MockBackend(t *testing.T) {
	task := filepath.Join(t.TempDir(), "sentiment.yaml")
	require.NoError(t, writeSampleTask(task, "sentiment", false))

	out, err := execute(t, "run",
		"--backend", "mock",
		"--task", task,
		"--generations", "2",
		"--population", "4",
		"--workers", "2",
		"--seed", "7",
		"--json",
	)
	require.NoError(t, err)

	var res application.RunResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 2, res.Generations)
	assert.Len(t, res.History, 2)
	assert.False(t, res.Canceled)
	assert.Len(t, res.BestEvaluation.TestCaseResults, 3)
	assert.InDelta(t, 1.0, res.BestEvaluation.SuccessRate, 1e-9)
}

func TestRunCmd_BudgetStopsRun(t *testing.T) {
	task := filepath.Join(t.TempDir(), "math.yaml")
	require.NoError(t, writeSampleTask(task, "math", false))

	out, err := execute(t, "run",
		"--backend", "mock",
		"--task", task,
		"--generations", "50",
		"--population", "4",
		"--max-calls", "8",
		"--json",
	)
	require.NoError(t, err)

	var res application.RunResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Canceled)
	assert.Less(t, res.Generations, 50)
}

func TestRunCmd_Errors(t *testing.T) {
	t.Run("missing task flag", func(t *testing.T) {
		_, err := execute(t, "run", "--backend", "mock")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "task")
	})

	t.Run("missing task file", func(t *testing.T) {
		_, err := execute(t, "run", "--backend", "mock", "--task", filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("invalid population", func(t *testing.T) {
		task := filepath.Join(t.TempDir(), "math.yaml")
		require.NoError(t, writeSampleTask(task, "math", false))
		_, err := execute(t, "run", "--backend", "mock", "--task", task, "--population", "1")
		require.Error(t, err)
		assert.True(t, domain.IsFatal(err))
	})
}

func TestHealthCmd_Mock(t *testing.T) {
	out, err := execute(t, "health", "--backend", "mock")
	require.NoError(t, err)
	assert.Equal(t, "mock: ok (no health check)\n", out)
}

func TestPrintReport(t *testing.T) {
	task := &domain.TaskDefinition{Name: "Basic math"}
	res := &application.RunResult{
		RunID:       "run-1",
		BestGenome:  domain.DefaultGenome(),
		BestFitness: 0.8123,
		Generations: 1,
		Evaluations: 4,
		Elapsed:     1500 * time.Millisecond,
		Canceled:    true,
		History: []domain.GenerationStats{
			{Generation: 0, BestFitness: 0.8123, MeanFitness: 0.5, MinFitness: 0.1, BestSoFar: 0.8123, Evaluated: 4},
		},
		BestEvaluation: domain.TaskEvaluationResult{
			OverallScore: 0.5,
			SuccessRate:  0.5,
			TestCaseResults: []domain.TestCaseResult{
				{Input: "What is 15 + 27?", ActualOutput: "42", Score: 1, Success: true},
				{Input: "What is 8 * 9?", Success: false, ErrorMessage: "execution failed: timeout"},
			},
		},
	}

	var buf bytes.Buffer
	printReport(&buf, task, res)
	out := buf.String()

	assert.Contains(t, out, "EVOLUTION RESULTS: Basic math")
	assert.Contains(t, out, "Best fitness:  0.8123")
	assert.Contains(t, out, "stopped early")
	assert.Contains(t, out, "instruction_style  direct")
	assert.Contains(t, out, "[ok] score=1.00 What is 15 + 27?")
	assert.Contains(t, out, "-> 42")
	assert.Contains(t, out, "!! execution failed: timeout")
	assert.Contains(t, out, "success rate 50%")
}

func TestOneLine(t *testing.T) {
	assert.Equal(t, "a b c", oneLine("a\n  b\tc", 10))
	got := oneLine(strings.Repeat("x", 20), 10)
	assert.Equal(t, "xxxxxxx...", got)
}
