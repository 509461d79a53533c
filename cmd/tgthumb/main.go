package main

import (
	"context"
	"os"

	"remuxkit/internal/av"
	"remuxkit/internal/cli"
	"remuxkit/internal/logging"
	"remuxkit/internal/thumbnail"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	tool := cli.New("tgthumb", "input output")
	format := tool.Flags.String("f", "jpeg", "output format: jpeg or webp")

	if code, ok := tool.Parse(args); !ok {
		return code
	}
	if tool.Flags.NArg() != 2 {
		return tool.Usagef("an input and an output are required")
	}
	out, err := thumbnail.ParseFormat(*format)
	if err != nil {
		return tool.Usagef("%v", err)
	}
	defer thumbnail.ShutdownVips()

	src, dest := tool.Flags.Arg(0), tool.Flags.Arg(1)
	return tool.Run(func(ctx context.Context, fw av.Framework) error {
		size, err := thumbnail.Thumbnail(ctx, fw, src, dest, out)
		if err != nil {
			return err
		}
		logging.Info("Wrote %s (%dx%d)", dest, size.Width, size.Height)
		return nil
	})
}
