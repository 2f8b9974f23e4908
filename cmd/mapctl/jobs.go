package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/control-mapper/internal/client"
)

func runStatus(ctx context.Context, c *client.Client, args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	job := fs.Bool("job", false, "the id is a job id")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: mapctl status [-job] <batch-or-job-id>")
		return 2
	}

	if *job {
		v, err := c.JobStatus(ctx, fs.Arg(0))
		if err != nil {
			return fail(err)
		}
		return printJSON(v)
	}
	v, err := c.BatchStatus(ctx, fs.Arg(0))
	if err != nil {
		return fail(err)
	}
	if !isTerminal(os.Stdout) {
		return printJSON(v)
	}
	fmt.Println(renderBatch(v, nil))
	return 0
}

func runCancel(ctx context.Context, c *client.Client, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: mapctl cancel <job-id>")
		return 2
	}
	res, err := c.CancelJob(ctx, args[0])
	if err != nil {
		return fail(err)
	}
	if !res.Cancelled {
		fmt.Printf("job %s was not running (status %s)\n", res.JobID, res.Status)
		return 1
	}
	fmt.Printf("job %s cancelled\n", res.JobID)
	return 0
}

func runDownload(ctx context.Context, c *client.Client, args []string) int {
	fs := flag.NewFlagSet("download", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	kind := fs.String("type", "json", "job artifact: json or excel")
	batch := fs.Bool("batch", false, "download the ZIP of every completed job in a batch")
	out := fs.String("o", "", "output file")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: mapctl download [-type json|excel] [-batch] [-o file] <id>")
		return 2
	}

	id := fs.Arg(0)
	path := *out
	if path == "" {
		switch {
		case *batch:
			path = id + ".zip"
		case *kind == "excel":
			path = id + ".xlsx"
		default:
			path = id + ".json"
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fail(err)
	}
	var n int64
	if *batch {
		n, err = c.DownloadBatch(ctx, id, f)
	} else {
		n, err = c.Download(ctx, id, *kind, f)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return fail(err)
	}
	abs, _ := filepath.Abs(path)
	fmt.Printf("wrote %d bytes to %s\n", n, abs)
	return 0
}
