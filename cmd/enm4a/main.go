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
	tool := cli.New("enm4a", "input")
	var (
		opts    pipeline.M4AOptions
		headers httpheader.List
		yes, no bool
	)
	f := tool.Flags
	f.StringVar(&opts.Output, "o", "", "output file (default: <title>.m4a)")
	f.StringVar(&opts.Cover, "c", "", "cover picture file")
	f.StringVar(&opts.InputFormat, "f", "", "force the input format")
	f.Var(&headers, "H", "HTTP header `key:value` for network inputs (repeatable)")
	f.StringVar(&opts.Metadata.Title, "title", "", "title tag")
	f.StringVar(&opts.Metadata.Artist, "artist", "", "artist tag")
	f.StringVar(&opts.Metadata.Album, "album", "", "album tag")
	f.StringVar(&opts.Metadata.AlbumArtist, "album-artist", "", "album artist tag")
	f.StringVar(&opts.Metadata.Disc, "disc", "", "disc number tag")
	f.StringVar(&opts.Metadata.Track, "track", "", "track number tag")
	f.StringVar(&opts.Metadata.Date, "date", "", "date tag")
	f.IntVar(&opts.SampleRate, "s", 0, "output sample rate (default: keep the source rate)")
	f.Int64Var(&opts.Bitrate, "b", 0, "AAC bitrate in bits per second when transcoding")
	f.BoolVar(&yes, "y", false, "overwrite the output without asking")
	f.BoolVar(&no, "n", false, "never overwrite the output")

	if code, ok := tool.Parse(args); !ok {
		return code
	}
	if f.NArg() != 1 {
		return tool.Usagef("exactly one input is required")
	}
	if yes && no {
		return tool.Usagef("-y and -n are mutually exclusive")
	}

	opts.Headers = httpheader.Generate(headers)
	opts.DefaultSampleRate = tool.Config.DefaultSampleRate
	switch {
	case yes:
		opts.Overwrite = pipeline.OverwriteYes
	case no:
		opts.Overwrite = pipeline.OverwriteNo
	default:
		opts.Prompter = pipeline.NewTerminalPrompter()
	}

	return tool.Run(func(ctx context.Context, fw av.Framework) error {
		res, err := pipeline.EncodeM4A(ctx, fw, f.Arg(0), opts)
		if err != nil {
			return err
		}
		logging.Info("Wrote %s: %d streams, %d packets in %v", res.Output, res.Streams, res.Packets, res.Elapsed)
		return nil
	})
}
