package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nidhogg/droid/internal/crew"
	"github.com/nidhogg/droid/internal/modules"
)

var crewInputs []string

var crewCmd = &cobra.Command{
	Use:   "crew <definition.yaml|name>",
	Short: "Run a crew definition and print its results",
	Long: `Build a crew from a YAML or JSON definition, or one of the predefined
crews, and run it through the run_crew task. Inputs are appended to every
work item's context.

Predefined crews: ` + strings.Join(crew.PredefinedNames(), ", ") + `

Example:
  droid crew campaign.yaml --input topic="summer launch"
  droid crew social_media --input niche=gaming`,
	Args: cobra.ExactArgs(1),
	RunE: runCrew,
}

func init() {
	crewCmd.Flags().StringArrayVar(&crewInputs, "input", nil, "crew input as key=value (repeatable)")
}

func runCrew(cmd *cobra.Command, args []string) error {
	inputs, err := parseParams("", crewInputs)
	if err != nil {
		return err
	}
	params, err := crewParams(args[0], inputs)
	if err != nil {
		return err
	}
	return withApp(cmd, func(a *app) error {
		res, err := a.sched.Submit(cmd.Context(), modules.TaskRunCrew, params)
		printResult(res)
		return err
	})
}

// crewParams treats arg as a file path when it exists, otherwise as a
// predefined crew name.
func crewParams(arg string, inputs map[string]any) (map[string]any, error) {
	params := map[string]any{"inputs": inputs}
	if _, err := os.Stat(arg); err == nil {
		params["path"] = arg
		return params, nil
	}
	if !crew.IsPredefined(arg) {
		return nil, fmt.Errorf("%s is neither a crew file nor a predefined crew (%s)",
			arg, strings.Join(crew.PredefinedNames(), ", "))
	}
	params["crew"] = arg
	return params, nil
}
