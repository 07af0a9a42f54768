package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/orinctl/strapd/internal/catalog"
	"github.com/orinctl/strapd/internal/models"
)

func init() {
	rootCmd.AddCommand(sequencesCmd)
	rootCmd.AddCommand(linesCmd)
	sequencesCmd.Flags().BoolVar(&sequencesVerbose, "steps", false, "show each template's steps")
}

var sequencesVerbose bool

var sequencesCmd = &cobra.Command{
	Use:   "sequences",
	Short: "List the sequence templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat := catalog.New()
		if cfg.TemplatesDir != "" {
			if err := cat.LoadOverridesFromDir(cfg.TemplatesDir); err != nil {
				return err
			}
		}

		rows := make([][]string, 0, 4)
		for _, tmpl := range cat.Templates() {
			rows = append(rows, []string{
				string(tmpl.Kind),
				strconv.Itoa(len(tmpl.Steps)),
				tmpl.Cooldown.String(),
				strconv.Itoa(tmpl.MaxRetries),
			})
		}
		if err := writeTable(os.Stdout, []string{"SEQUENCE", "STEPS", "COOLDOWN", "RETRIES"}, rows); err != nil {
			return err
		}

		if !sequencesVerbose {
			return nil
		}
		for _, tmpl := range cat.Templates() {
			fmt.Printf("\n%s:\n", tmpl.Kind)
			for i, step := range tmpl.Steps {
				completion := "hold " + step.Hold.String()
				if step.Completion.Mode == models.CompleteOnBridgeActivity {
					completion = fmt.Sprintf("await console activity (timeout %s)", step.Completion.Timeout)
				}
				fmt.Printf("  %d. %s %s, %s\n", i+1, step.Action, step.Line, completion)
			}
		}
		return nil
	},
}

var linesCmd = &cobra.Command{
	Use:   "lines",
	Short: "Show the strap line table",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat := catalog.New()
		rows := make([][]string, 0, 4)
		for _, line := range cat.Lines() {
			rows = append(rows, []string{
				string(line.ID),
				line.Name,
				line.MCUPin,
				line.DriverOutput,
				strconv.Itoa(line.HeaderPin),
				string(line.Polarity),
			})
		}
		return writeTable(os.Stdout,
			[]string{"LINE", "SIGNAL", "MCU PIN", "DRIVER", "HEADER", "POLARITY"}, rows)
	},
}
