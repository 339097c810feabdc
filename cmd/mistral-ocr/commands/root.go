package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X ...commands.Version=...".
var Version = "1.0.0"

// options holds the command-line flags for one invocation.
type options struct {
	outputPath    string
	apiKey        string
	model         string
	envFile       string
	configFile    string
	includeImages bool
	noImages      bool
	addTimestamp  bool
	recursive     bool
	concurrency   int
	overwrite     bool
	timeout       time.Duration
	noColor       bool
	verbose       bool
}

// NewRootCommand builds the mistral-ocr command.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "mistral-ocr INPUT_PATH",
		Short: "Process documents using Mistral AI's OCR API",
		Long: `mistral-ocr sends PDF and image files to the Mistral OCR API and writes the
recognized text, tables and images to disk as markdown, together with a
metadata.json summary of the run.

INPUT_PATH may be a single file or a directory of files.`,
		Example: `  # Process a single PDF file
  mistral-ocr document.pdf

  # Process all files in a directory
  mistral-ocr ./documents --output-path ./results

  # Use a specific .env file
  mistral-ocr doc.pdf --env-file .env.production`,
		Args:          cobra.ExactArgs(1),
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, args[0])
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.outputPath, "output-path", "o", "", "output directory (default: <input_dir>/mistral_ocr_output)")
	flags.StringVar(&opts.apiKey, "api-key", "", "Mistral API key (default: $MISTRAL_API_KEY)")
	flags.StringVar(&opts.model, "model", "", "OCR model to use (default: mistral-ocr-latest)")
	flags.StringVar(&opts.envFile, "env-file", "", "path to a .env file containing configuration")
	flags.StringVar(&opts.configFile, "config", "", "path to a YAML settings file")
	flags.BoolVar(&opts.includeImages, "include-images", true, "extract embedded images")
	flags.BoolVar(&opts.noImages, "no-images", false, "do not extract embedded images")
	flags.BoolVar(&opts.addTimestamp, "add-timestamp", false, "add a timestamp to the default output folder name")
	flags.BoolVarP(&opts.recursive, "recursive", "r", false, "descend into sub-directories")
	flags.IntVarP(&opts.concurrency, "concurrency", "c", 1, "number of files processed in parallel")
	flags.BoolVar(&opts.overwrite, "overwrite", false, "replace outputs left by an earlier run")
	flags.DurationVar(&opts.timeout, "timeout", 0, "per-request HTTP timeout (default 5m)")
	flags.BoolVar(&opts.noColor, "no-color", false, "disable colored output")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable verbose output")

	cmd.MarkFlagsMutuallyExclusive("include-images", "no-images")
	cmd.SetVersionTemplate(fmt.Sprintf("mistral-ocr version %s\n", Version))

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}
