package prompt

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/control-mapper/constants"
	"github.com/joseph-ayodele/control-mapper/internal/entity"
)

const (
	systemFile = "system_prompt.txt"
	formatFile = "output_format.json"

	// MaxDocumentChars caps how much of the extracted document goes into a prompt.
	MaxDocumentChars = 50000
)

//go:embed defaults/*
var defaults embed.FS

type Request struct {
	FrameworkName        string
	FrameworkVersion     string
	FrameworkFullName    string
	FrameworkDescription string
	Provider             string
	DocumentText         string
	ChecksList           string
	FieldMappings        entity.FieldMappings
	CustomInstructions   string
	EnableSubgroup       bool
}

// Builder renders mapping prompts from templates found in a prompts
// directory, falling back to the embedded copies.
type Builder struct {
	system       string
	outputFormat string
}

func NewBuilder(dir string, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		system:       loadTemplate(dir, systemFile, logger),
		outputFormat: loadTemplate(dir, formatFile, logger),
	}
}

func loadTemplate(dir, name string, logger *slog.Logger) string {
	if dir != "" {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err == nil {
			return string(b)
		}
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("prompt template unreadable, using default", "file", name, "error", err)
		}
	}
	b, _ := defaults.ReadFile("defaults/" + name)
	return string(b)
}

func (b *Builder) SystemPrompt() string { return b.system }

// Build returns the system prompt and the user prompt for one provider.
func (b *Builder) Build(req Request) (string, string) {
	display := constants.ProviderDisplayName(req.Provider)
	version := req.FrameworkVersion
	if version == "" {
		version = "Not specified"
	}
	custom := strings.TrimSpace(req.CustomInstructions)
	if custom == "" {
		custom = "None provided."
	}

	var p strings.Builder
	p.WriteString("# Control Mapping Task\n\n")

	p.WriteString("## Objective\n")
	fmt.Fprintf(&p, "Map compliance controls from the framework document to %s security checks.\n\n", display)

	p.WriteString("## Framework Information\n")
	fmt.Fprintf(&p, "- Framework (short name): %s\n", req.FrameworkName)
	fmt.Fprintf(&p, "- Version: %s\n", version)
	fmt.Fprintf(&p, "- Provider Target: %s\n", display)
	if req.FrameworkFullName != "" {
		fmt.Fprintf(&p, "- Full Name: %s\n", req.FrameworkFullName)
	}
	p.WriteString("\n")

	p.WriteString("## Framework Document Content\n```\n")
	p.WriteString(truncateRunes(req.DocumentText, MaxDocumentChars))
	p.WriteString("\n```\n\n")

	p.WriteString("## Field Mapping Instructions\n")
	p.WriteString(FieldMappingText(req.FieldMappings, req.EnableSubgroup))
	p.WriteString("\n\n")

	fmt.Fprintf(&p, "## Available Security Checks for %s\n", display)
	p.WriteString(req.ChecksList)
	p.WriteString("\n\n")

	p.WriteString("## Additional Instructions\n")
	p.WriteString(custom)
	p.WriteString("\n\n")

	p.WriteString("## Required Output Format\n")
	p.WriteString("Return a JSON object with this exact structure:\n\n")
	p.WriteString(strings.TrimSpace(b.outputFormat))
	p.WriteString("\n\n")

	p.WriteString("CRITICAL INSTRUCTIONS:\n")
	for i, line := range criticalInstructions(req, display) {
		fmt.Fprintf(&p, "%d. %s\n", i+1, line)
	}
	p.WriteString("\nAnalyze the framework and output the mapping JSON:\n")

	return b.system, p.String()
}

func criticalInstructions(req Request, display string) []string {
	out := []string{
		`In the "Checks" array, use the exact CheckID values from the list above`,
		"Output ONLY valid JSON - no explanatory text before or after",
		"If no suitable check exists for a control, leave the Checks array empty",
		"PRESERVE EXACT FORMAT: For Section, SubSection, Id, and Name fields, copy the EXACT text from the document INCLUDING:\n" +
			`   - Number prefixes (e.g., "2.0 Security Domain Policies" NOT just "Security Domain Policies")` + "\n" +
			"   - Original punctuation and formatting\n" +
			`   - Full hierarchy indicators (e.g., "2.1.1" not just the text)`,
		"The Id field should be the control identifier exactly as it appears in the document",
		"Section and SubSection should include their full identifiers/numbers as shown in the document",
		fmt.Sprintf(`The "Provider" field in the output JSON MUST be exactly: "%s"`, display),
	}

	if req.FrameworkFullName != "" {
		out = append(out, fmt.Sprintf(`The "Name" field in the output JSON MUST be exactly: "%s"`, req.FrameworkFullName))
	} else {
		out = append(out, `The "Name" field should be a full descriptive name of the framework extracted from the document`)
	}

	if req.EnableSubgroup {
		out = append(out, `Include the "SubGroup" field for sub-sections (e.g., 4.1, 4.2, 4.3 under a parent section 4). Each sub-section should be a separate entry in the Requirements array.`)
	} else {
		out = append(out,
			`DO NOT include the "SubGroup" field in the output JSON - omit it entirely from each requirement object.`,
			"IMPORTANT: Do NOT create separate entries for sub-sections (like 4.1, 4.2, 4.3). Instead, merge all sub-sections into their parent control (e.g., section 4). Combine all checks from sub-sections into the parent control's Checks array.",
		)
	}

	if req.FrameworkDescription != "" {
		out = append(out, fmt.Sprintf(`The "Description" field in the output JSON MUST be exactly: "%s"`, req.FrameworkDescription))
	} else {
		out = append(out, `The "Description" field should be a concise description of this mapping generated from the document context`)
	}
	return out
}

type fieldLine struct {
	label   string
	value   string
	example string
}

// FieldMappingText describes which document columns hold which control fields.
func FieldMappingText(m entity.FieldMappings, enableSubgroup bool) string {
	if m.IsZero() {
		return "Use your best judgment to identify control fields in the document."
	}

	fields := []fieldLine{
		{"Control ID", m.IDField, m.IDFormatExample},
		{"Control Name", m.NameField, m.NameFormatExample},
		{"Description", m.DescriptionField, m.DescriptionFormatExample},
		{"Section", m.SectionField, m.SectionFormatExample},
		{"SubSection", m.SubSectionField, m.SubSectionFormatExample},
	}
	if enableSubgroup {
		fields = append(fields, fieldLine{"SubGroup", m.SubGroupField, m.SubGroupFormatExample})
	}
	fields = append(fields, fieldLine{"Service", m.ServiceField, ""})

	lines := []string{"The document uses the following field structure:"}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		line := fmt.Sprintf(`- %s is in the field/column: "%s"`, f.label, f.value)
		if f.example != "" {
			line += fmt.Sprintf(`. IMPORTANT: Follow this exact format pattern: "%s" (preserve numbering, prefixes, and exact formatting)`, f.example)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
