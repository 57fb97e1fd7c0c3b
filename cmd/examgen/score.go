package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pavelanni/examgen/internal/model"
	"github.com/pavelanni/examgen/internal/scoring"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func scoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Grade one answer offline against a model answer and key points",
		Example: `  examgen score --answer "물은 H2O이다" --model-answer "물은 H2O로 이루어진다" --key H2O --key 물
  examgen score --answer "..." --model-answer "..." --json`,
		RunE: runScore,
	}
	f := cmd.Flags()
	f.String("answer", "", "Student answer")
	f.String("model-answer", "", "Reference answer")
	f.StringArray("key", nil, "Key point (repeatable)")
	f.Bool("json", false, "Print the result as JSON")
	addLogFlags(cmd)
	return cmd
}

func runScore(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	keys, err := cmd.Flags().GetStringArray("key")
	if err != nil {
		return err
	}
	res, err := scoring.Score(v.GetString("answer"), v.GetString("model-answer"), keys)
	if err != nil {
		return fmt.Errorf("score: %w", err)
	}

	out := cmd.OutOrStdout()
	if v.GetBool("json") {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printScore(out, res, len(keys))
	return nil
}

func printScore(w io.Writer, res model.ScoreResult, keyCount int) {
	total := fmt.Sprintf("%d/%d", res.Total, scoring.MaxTotal)
	switch {
	case res.Total >= scoring.CorrectThreshold:
		total = green(total)
	case res.Total >= scoring.CorrectThreshold/2:
		total = yellow(total)
	default:
		total = red(total)
	}
	fmt.Fprintf(w, "%s %s\n", bold("Total:"), total)
	fmt.Fprintf(w, "  coverage    %.3f (%d/%d key points)\n", res.Coverage, len(res.MatchedKeys), keyCount)
	fmt.Fprintf(w, "  similarity  %.3f\n", res.Similarity)
	fmt.Fprintf(w, "  length      %.3f\n", res.LengthScore)
	if len(res.MatchedKeys) > 0 {
		fmt.Fprintf(w, "  matched     %s\n", strings.Join(res.MatchedKeys, ", "))
	}
}
