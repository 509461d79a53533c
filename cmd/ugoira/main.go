package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"remuxkit/internal/av"
	"remuxkit/internal/cli"
	"remuxkit/internal/logging"
	"remuxkit/internal/ugoira"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// frameSpec is one entry of a -frames file. Delay is in milliseconds.
type frameSpec struct {
	File  string `json:"file"`
	Delay int64  `json:"delay"`
}

func run(args []string) int {
	tool := cli.New("ugoira", "zip output [file:delay_ms...]")
	opts := ugoira.DefaultOptions()
	framesFile := tool.Flags.String("frames", "", "JSON file listing {\"file\", \"delay\"} frames")
	tool.Flags.Float64Var(&opts.MaxFPS, "max-fps", opts.MaxFPS, "frame rate cap, 0 for none")
	tool.Flags.IntVar(&opts.CRF, "crf", opts.CRF, "x264 constant rate factor, -1 to leave unset")
	tool.Flags.StringVar(&opts.Preset, "preset", opts.Preset, "x264 preset")
	tool.Flags.StringVar(&opts.Level, "level", "", "H.264 level")
	tool.Flags.StringVar(&opts.Profile, "profile", "", "H.264 profile")
	tool.Flags.BoolVar(&opts.ForceYUV420P, "yuv420p", false, "encode in 4:2:0 chroma")

	if code, ok := tool.Parse(args); !ok {
		return code
	}
	if tool.Flags.NArg() < 2 {
		return tool.Usagef("a zip file and an output are required")
	}

	var frames []ugoira.Frame
	var err error
	if *framesFile != "" {
		if tool.Flags.NArg() > 2 {
			return tool.Usagef("frames are given either with -frames or as arguments")
		}
		frames, err = loadFrames(*framesFile)
	} else {
		frames, err = parseFrames(tool.Flags.Args()[2:])
	}
	if err != nil {
		return tool.Usagef("%v", err)
	}

	zipPath, dest := tool.Flags.Arg(0), tool.Flags.Arg(1)
	return tool.Run(func(ctx context.Context, fw av.Framework) error {
		res, err := ugoira.Convert(ctx, fw, zipPath, dest, frames, opts)
		if err != nil {
			return err
		}
		logging.Info("Wrote %s with %s: %dx%d, %d frames at %g fps",
			res.Output, res.Encoder, res.Width, res.Height, res.Frames, res.FPS)
		return nil
	})
}

func loadFrames(path string) ([]ugoira.Frame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var specs []frameSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	frames := make([]ugoira.Frame, len(specs))
	for i, s := range specs {
		if frames[i], err = ugoira.NewFrame(s.File, time.Duration(s.Delay)*time.Millisecond); err != nil {
			return nil, err
		}
	}
	return frames, nil
}

// parseFrames reads "file:delay_ms" arguments. The delay follows the last
// colon so file names may contain colons.
func parseFrames(args []string) ([]ugoira.Frame, error) {
	frames := make([]ugoira.Frame, 0, len(args))
	for _, arg := range args {
		i := strings.LastIndexByte(arg, ':')
		if i <= 0 {
			return nil, fmt.Errorf("frame %q is not file:delay_ms", arg)
		}
		ms, err := strconv.ParseInt(arg[i+1:], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("frame %q: bad delay: %w", arg, err)
		}
		f, err := ugoira.NewFrame(arg[:i], time.Duration(ms)*time.Millisecond)
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	return frames, nil
}
