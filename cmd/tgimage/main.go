package main

import (
	"context"
	"os"

	"remuxkit/internal/av"
	"remuxkit/internal/cli"
	"remuxkit/internal/logging"
	"remuxkit/internal/thumbnail"
)

// defaultMaxLength is the longest side Telegram keeps for photos.
const defaultMaxLength = 2560

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	tool := cli.New("tgimage", "input output")
	format := tool.Flags.String("f", "jpeg", "output format: jpeg or png")
	maxLen := tool.Flags.Int("m", defaultMaxLength, "maximum length of the longer side")
	yuv420p := tool.Flags.Bool("yuv420p", false, "only copy sources already in 4:2:0 chroma")

	if code, ok := tool.Parse(args); !ok {
		return code
	}
	if tool.Flags.NArg() != 2 {
		return tool.Usagef("an input and an output are required")
	}
	if *maxLen <= 0 {
		return tool.Usagef("-m must be positive")
	}
	out, err := thumbnail.ParseFormat(*format)
	if err != nil {
		return tool.Usagef("%v", err)
	}

	src, dest := tool.Flags.Arg(0), tool.Flags.Arg(1)
	return tool.Run(func(ctx context.Context, fw av.Framework) error {
		size, err := thumbnail.Compress(ctx, fw, src, dest, out, *maxLen, *yuv420p)
		if err != nil {
			return err
		}
		logging.Info("Wrote %s (%dx%d)", dest, size.Width, size.Height)
		return nil
	})
}
