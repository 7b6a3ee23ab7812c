package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type versionInfo struct {
	Version   string `json:"version" yaml:"version"`
	GoVersion string `json:"goVersion" yaml:"goVersion"`
	Platform  string `json:"platform" yaml:"platform"`
}

func NewVersionCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Report version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			v := versionInfo{
				Version:   version,
				GoVersion: runtime.Version(),
				Platform:  runtime.GOOS + "/" + runtime.GOARCH,
			}
			out := cmd.OutOrStdout()

			of, err := cmd.Flags().GetString("output")
			if err != nil {
				return err
			}
			switch of {
			case "":
				fmt.Fprintf(out, "omniassist %s\n", v.Version)
			case "yaml":
				y, err := yaml.Marshal(&v)
				if err != nil {
					return err
				}
				fmt.Fprint(out, string(y))
			case "json":
				j, err := json.MarshalIndent(&v, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(j))
			default:
				return fmt.Errorf("invalid output format: %s", of)
			}
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "", "output format; one of 'yaml' or 'json'")
	return cmd
}
