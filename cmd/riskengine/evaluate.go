package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"leasing/risk-engine/internal/domain"
	"leasing/risk-engine/internal/scoring"
)

var evaluateFile string

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score one request, or a JSON array of requests, and print the responses",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := buildEngine(cfg, logger)
		if err != nil {
			return err
		}

		var in io.Reader = cmd.InOrStdin()
		if evaluateFile != "-" {
			f, err := os.Open(evaluateFile)
			if err != nil {
				return eris.Wrap(err, "open request file")
			}
			defer f.Close()
			in = f
		}
		return runEvaluate(engine, in, cmd.OutOrStdout())
	},
}

// runEvaluate decodes a single request or an array and writes the matching
// response shape as indented JSON. Every request is validated first and
// nothing is written when any of them is invalid.
func runEvaluate(engine *scoring.Engine, r io.Reader, w io.Writer) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return eris.Wrap(err, "read requests")
	}
	raw = bytes.TrimSpace(raw)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if len(raw) > 0 && raw[0] == '[' {
		var reqs []domain.RiskEvaluationRequest
		if err := json.Unmarshal(raw, &reqs); err != nil {
			return eris.Wrap(err, "parse request array")
		}
		for i := range reqs {
			if err := reqs[i].Validate(); err != nil {
				return eris.Wrapf(err, "request %d (%s)", i, reqs[i].RequestID)
			}
		}
		out := make([]domain.RiskEvaluationResponse, 0, len(reqs))
		for i := range reqs {
			out = append(out, engine.Evaluate(&reqs[i]))
		}
		return enc.Encode(out)
	}

	var req domain.RiskEvaluationRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return eris.Wrap(err, "parse request")
	}
	if err := req.Validate(); err != nil {
		return eris.Wrapf(err, "request %s", req.RequestID)
	}
	return enc.Encode(engine.Evaluate(&req))
}

func init() {
	evaluateCmd.Flags().StringVarP(&evaluateFile, "file", "f", "-", "request JSON file, or - for stdin")
	rootCmd.AddCommand(evaluateCmd)
}
