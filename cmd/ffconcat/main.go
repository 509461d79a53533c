package main

import (
	"context"
	"os"

	"remuxkit/internal/av"
	"remuxkit/internal/cli"
	"remuxkit/internal/httpheader"
	"remuxkit/internal/logging"
	"remuxkit/internal/pipeline"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	tool := cli.New("ffconcat", "-o output input...")
	var (
		opts    pipeline.ConcatOptions
		headers httpheader.List
		output  string
		yes, no bool
	)
	f := tool.Flags
	f.StringVar(&output, "o", "", "output file (required)")
	f.StringVar(&opts.Format, "f", "", "force the output format (default: guessed from the extension)")
	f.Var(&headers, "H", "HTTP header `key:value` for network inputs (repeatable)")
	f.BoolVar(&yes, "y", false, "overwrite the output without asking")
	f.BoolVar(&no, "n", false, "never overwrite the output")

	if code, ok := tool.Parse(args); !ok {
		return code
	}
	if output == "" {
		return tool.Usagef("an output file is required")
	}
	if f.NArg() == 0 {
		return tool.Usagef("at least one input is required")
	}
	if yes && no {
		return tool.Usagef("-y and -n are mutually exclusive")
	}

	opts.Headers = httpheader.Generate(headers)
	switch {
	case yes:
		opts.Overwrite = pipeline.OverwriteYes
	case no:
		opts.Overwrite = pipeline.OverwriteNo
	default:
		opts.Prompter = pipeline.NewTerminalPrompter()
	}

	return tool.Run(func(ctx context.Context, fw av.Framework) error {
		res, err := pipeline.Concat(ctx, fw, output, f.Args(), opts)
		if err != nil {
			return err
		}
		logging.Info("Wrote %s from %d inputs: %d packets, %d timestamp corrections",
			res.Output, f.NArg(), res.Packets, res.Corrections)
		return nil
	})
}
