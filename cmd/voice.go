package cmd

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/omniassist/server/render"
	"github.com/omniassist/server/server"
)

type VoiceFlags struct {
	*ModelFlags

	JSON  bool
	Width int
}

func NewVoiceFlags() *VoiceFlags {
	return &VoiceFlags{
		ModelFlags: NewModelFlags(),
		Width:      render.DefaultWidth,
	}
}

func (f *VoiceFlags) BindFlags(flagSet *pflag.FlagSet) {
	f.ModelFlags.BindFlags(flagSet)
	flagSet.BoolVar(&f.JSON, "json", f.JSON, "print the raw result as JSON")
	flagSet.IntVar(&f.Width, "width", f.Width, "wrap width for rendered output")
}

func NewVoiceCommand(configFile *string) *cobra.Command {
	f := NewVoiceFlags()

	cmd := &cobra.Command{
		Use:   "voice [command]",
		Short: "Run a transcribed voice command",
		Example: `  omniassist voice "open calculator"
  omniassist voice "search the web for go generics"
  omniassist voice "find files report"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, *configFile)
			if err != nil {
				return err
			}
			initCLILogger(cfg)

			services, err := server.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer services.Close(context.Background())

			result := services.Voice.Handle(cmd.Context(), strings.Join(args, " "))
			if f.JSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			fprintln(cmd, render.VoiceResult(result, f.Width))
			return nil
		},
	}

	f.BindFlags(cmd.Flags())
	return cmd
}
