package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joseph-ayodele/control-mapper/internal/client"
	"github.com/joseph-ayodele/control-mapper/internal/entity"
	"github.com/joseph-ayodele/control-mapper/internal/services/configure"
	mapsvc "github.com/joseph-ayodele/control-mapper/internal/services/mapping"
)

// submission is one upload, configure and map round trip.
type submission struct {
	File               string
	Framework          string
	Version            string
	FullName           string
	Description        string
	Providers          []string
	EnableSubgroup     *bool
	FieldMappings      entity.FieldMappings
	CustomInstructions string
}

func submit(ctx context.Context, c *client.Client, s submission) (*mapsvc.StartResult, error) {
	if s.File == "" {
		return nil, errors.New("a document path is required")
	}
	up, err := c.Upload(ctx, s.File)
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	cfg, err := c.Configure(ctx, configure.Request{
		UploadID:             up.UploadID.String(),
		FrameworkName:        s.Framework,
		FrameworkVersion:     optional(s.Version),
		FrameworkFullName:    optional(s.FullName),
		FrameworkDescription: optional(s.Description),
		Providers:            s.Providers,
		EnableSubgroup:       s.EnableSubgroup,
		FieldMappings:        s.FieldMappings,
		CustomInstructions:   optional(s.CustomInstructions),
	})
	if err != nil {
		return nil, fmt.Errorf("configure: %w", err)
	}
	res, err := c.StartMapping(ctx, up.UploadID, cfg.ConfigurationID)
	if err != nil {
		return nil, fmt.Errorf("map: %w", err)
	}
	return res, nil
}

func runMap(ctx context.Context, c *client.Client, args []string) int {
	fs := flag.NewFlagSet("map", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	framework := fs.String("framework", "", "short framework name, e.g. CIS")
	version := fs.String("version", "", "framework version")
	fullName := fs.String("full-name", "", "full framework name")
	description := fs.String("description", "", "framework description")
	providers := fs.String("providers", "", "comma-separated providers, e.g. aws,gcp")
	noSubgroup := fs.Bool("no-subgroup", false, "omit SubGroup from requirement attributes")
	mappingsFile := fs.String("mappings", "", "JSON file with field mappings")
	instructions := fs.String("instructions", "", "extra instructions for the mapper")
	watch := fs.Bool("watch", false, "follow the batch until it finishes")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: mapctl map -framework NAME -providers aws,gcp [options] <document>")
		return 2
	}

	s := submission{
		File:               fs.Arg(0),
		Framework:          *framework,
		Version:            *version,
		FullName:           *fullName,
		Description:        *description,
		Providers:          splitList(*providers),
		CustomInstructions: *instructions,
	}
	if *noSubgroup {
		off := false
		s.EnableSubgroup = &off
	}
	if *mappingsFile != "" {
		fm, err := readFieldMappings(*mappingsFile)
		if err != nil {
			return fail(err)
		}
		s.FieldMappings = fm
	}

	res, err := submit(ctx, c, s)
	if err != nil {
		return fail(err)
	}
	if !*watch {
		if !isTerminal(os.Stdout) {
			return printJSON(res)
		}
		fmt.Printf("%s %s\n", labelStyle.Render("batch:"), res.BatchID)
		for _, j := range res.Jobs {
			fmt.Printf("  %-8s %s\n", j.Provider, j.JobID)
		}
		return 0
	}
	return watchBatch(ctx, c, res.BatchID.String(), defaultPollInterval)
}

func readFieldMappings(path string) (entity.FieldMappings, error) {
	var fm entity.FieldMappings
	raw, err := os.ReadFile(path)
	if err != nil {
		return fm, err
	}
	if err := json.Unmarshal(raw, &fm); err != nil {
		return fm, fmt.Errorf("parse %s: %w", path, err)
	}
	return fm, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
