package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ahrav/go-evoprompt/internal/application"
	"github.com/ahrav/go-evoprompt/internal/domain"
)

const reportRule = "============================================================"

// printReport writes the human readable summary of a run.
func printReport(w io.Writer, task *domain.TaskDefinition, res *application.RunResult) {
	fmt.Fprintln(w, reportRule)
	fmt.Fprintf(w, "EVOLUTION RESULTS: %s\n", task.Name)
	fmt.Fprintln(w, reportRule)
	fmt.Fprintf(w, "Run ID:        %s\n", res.RunID)
	fmt.Fprintf(w, "Generations:   %d\n", res.Generations)
	fmt.Fprintf(w, "Evaluations:   %d\n", res.Evaluations)
	fmt.Fprintf(w, "Elapsed:       %s\n", res.Elapsed.Round(time.Millisecond))
	if res.Canceled {
		fmt.Fprintln(w, "Status:        stopped early")
	}
	fmt.Fprintf(w, "Best fitness:  %.4f\n", res.BestFitness)

	g := res.BestGenome
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Best genome:")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "  system_prompt\t%q\n", g.SystemPrompt)
	fmt.Fprintf(tw, "  prompt_template\t%q\n", g.PromptTemplate)
	fmt.Fprintf(tw, "  instruction_style\t%s\n", g.InstructionStyle)
	fmt.Fprintf(tw, "  tool_policy\t%s\n", g.ToolPolicy)
	fmt.Fprintf(tw, "  temperature\t%.2f\n", g.Temperature)
	fmt.Fprintf(tw, "  max_tokens\t%d\n", g.MaxTokens)
	fmt.Fprintf(tw, "  top_p\t%.2f\n", g.TopP)
	fmt.Fprintf(tw, "  top_k\t%d\n", g.TopK)
	fmt.Fprintf(tw, "  repeat_penalty\t%.2f\n", g.RepeatPenalty)
	fmt.Fprintf(tw, "  response_format\t%s\n", g.ResponseFormat)
	_ = tw.Flush()

	if len(res.History) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Fitness by generation:")
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "gen\tbest\tmean\tmin\tbest so far\tevaluated\tfailed\t")
		for _, s := range res.History {
			fmt.Fprintf(tw, "%d\t%.4f\t%.4f\t%.4f\t%.4f\t%d\t%d\t\n",
				s.Generation, s.BestFitness, s.MeanFitness, s.MinFitness, s.BestSoFar, s.Evaluated, s.Failed)
		}
		_ = tw.Flush()
	}

	ev := res.BestEvaluation
	if len(ev.TestCaseResults) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Best genome on test cases:")
	fmt.Fprintf(w, "  overall score %.4f, success rate %.0f%%, total %dms\n",
		ev.OverallScore, ev.SuccessRate*100, ev.TotalExecutionTimeMs)
	for i, r := range ev.TestCaseResults {
		status := "ok"
		if !r.Success {
			status = "FAILED"
		}
		fmt.Fprintf(w, "  %d. [%s] score=%.2f %s\n", i+1, status, r.Score, oneLine(r.Input, 60))
		if r.Success {
			fmt.Fprintf(w, "     -> %s\n", oneLine(r.ActualOutput, 72))
		} else if r.ErrorMessage != "" {
			fmt.Fprintf(w, "     !! %s\n", oneLine(r.ErrorMessage, 72))
		}
	}
}

// oneLine collapses whitespace and truncates s to n runes.
func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
