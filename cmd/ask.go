package cmd

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/omniassist/server/assistant"
	"github.com/omniassist/server/dataurl"
	"github.com/omniassist/server/render"
	"github.com/omniassist/server/server"
)

type AskFlags struct {
	*ModelFlags

	Image string
	File  string
	Width int
}

func NewAskFlags() *AskFlags {
	return &AskFlags{
		ModelFlags: NewModelFlags(),
		Width:      render.DefaultWidth,
	}
}

func (f *AskFlags) BindFlags(flagSet *pflag.FlagSet) {
	f.ModelFlags.BindFlags(flagSet)
	flagSet.StringVar(&f.Image, "image", f.Image, "attach an image file")
	flagSet.StringVar(&f.File, "file", f.File, "attach a document")
	flagSet.IntVar(&f.Width, "width", f.Width, "wrap width for rendered output")
}

// query builds the assistant query from args and the attachment flags.
func (f *AskFlags) query(args []string) (assistant.Query, error) {
	q := assistant.Query{Question: strings.Join(args, " ")}

	if f.Image != "" {
		uri, _, err := readDataURI(f.Image)
		if err != nil {
			return q, fmt.Errorf("read image: %w", err)
		}
		q.ImageDataURI = uri
	}
	if f.File != "" {
		uri, mimeType, err := readDataURI(f.File)
		if err != nil {
			return q, fmt.Errorf("read file: %w", err)
		}
		q.File = &assistant.File{
			Name:    filepath.Base(f.File),
			Type:    mimeType,
			DataURI: uri,
		}
	}
	return q, nil
}

func readDataURI(path string) (string, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return dataurl.Encode(data, mimeType), mimeType, nil
}

func NewAskCommand(configFile *string) *cobra.Command {
	f := NewAskFlags()

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the assistant a one-off question",
		Example: `  omniassist ask "What is a goroutine?"
  omniassist ask --image chart.png "Summarize this chart"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := f.query(args)
			if err != nil {
				return err
			}

			cfg, err := loadConfig(cmd, *configFile)
			if err != nil {
				return err
			}
			initCLILogger(cfg)

			model, err := server.NewModel(cfg)
			if err != nil {
				return err
			}
			svc := assistant.New(model, assistant.Options{
				Name:      cfg.Assistant.Name,
				MaxTokens: cfg.Model.MaxTokens,
			})

			res, err := svc.Answer(cmd.Context(), q)
			if errors.Is(err, assistant.ErrEmptyQuery) {
				return errors.New("nothing to ask: give a question, --image or --file")
			}
			if err != nil {
				return err
			}
			fprintln(cmd, render.Answer(res, f.Width))
			return nil
		},
	}

	f.BindFlags(cmd.Flags())
	return cmd
}
