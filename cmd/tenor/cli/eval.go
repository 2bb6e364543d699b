package cli

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/riverline-labs/tenor/internal/evaluator"
	"github.com/riverline-labs/tenor/internal/interchange"
)

func evalHandler(cmd *cobra.Command, args []string) error {
	bundleRaw, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	contract, err := evaluator.LoadContractPolicy(bundleRaw, cfg.Bundle.RejectedVersionPolicy)
	if err != nil {
		return err
	}

	inputs := map[string]any{}
	seeds := evaluator.EntityStates{}
	factsPath, _ := cmd.Flags().GetString("facts")
	if factsPath != "" {
		factsRaw, err := os.ReadFile(factsPath)
		if err != nil {
			return err
		}
		inputs, seeds, err = evaluator.ParseFactsFile(factsRaw)
		if err != nil {
			return err
		}
	}

	facts, err := evaluator.Assemble(contract, inputs)
	if err != nil {
		return err
	}
	verdicts, err := evaluator.EvalStrata(contract, facts)
	if err != nil {
		return err
	}

	flowID, _ := cmd.Flags().GetString("flow")
	persona, _ := cmd.Flags().GetString("persona")

	var envelope map[string]any
	if flowID != "" {
		states := evaluator.SeedEntityStates(contract, seeds)
		snapshot := evaluator.Snapshot{Facts: facts, Verdicts: verdicts}
		res, err := evaluator.ExecuteFlow(contract, flowID, persona, snapshot, states, evaluator.FlowOptions{
			MaxIterations: cfg.Flows.MaxIterations,
		})
		if err != nil {
			return err
		}
		log.WithFields(logrus.Fields{"flow": flowID, "outcome": res.Outcome}).Info("flow completed")
		envelope = evaluator.RenderFlowResult(verdicts, res)
	} else {
		envelope = evaluator.RenderVerdicts(verdicts)
	}

	out, err := interchange.CanonicalMarshal(envelope)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

var evalCmd = &cobra.Command{
	Use:   "eval BUNDLE",
	Short: "Evaluate a bundle's rules (and optionally a flow) against a facts file",
	Args:  cobra.ExactArgs(1),
	RunE:  evalHandler,
}

func init() {
	evalCmd.Flags().String("facts", "", "facts JSON file")
	evalCmd.Flags().String("flow", "", "flow id to execute after rule evaluation")
	evalCmd.Flags().String("persona", "", "initiating persona for --flow")
	rootCmd.AddCommand(evalCmd)
}
