package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"remuxkit/internal/av"
	"remuxkit/internal/cli"
	"remuxkit/internal/httpheader"
	"remuxkit/internal/probe"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, stdout io.Writer) int {
	tool := cli.New("avinfo", "input")
	var headers httpheader.List
	tool.Flags.Var(&headers, "H", "HTTP header `key:value` for network inputs (repeatable)")
	compact := tool.Flags.Bool("c", false, "compact JSON output")

	if code, ok := tool.Parse(args); !ok {
		return code
	}
	if tool.Flags.NArg() != 1 {
		return tool.Usagef("exactly one input is required")
	}

	return tool.Run(func(ctx context.Context, fw av.Framework) error {
		info, err := probe.Probe(ctx, fw, tool.Flags.Arg(0), headers)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(stdout)
		if !*compact {
			enc.SetIndent("", "  ")
		}
		return enc.Encode(info)
	})
}
