package mapping

import (
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/joseph-ayodele/control-mapper/internal/common"
	"github.com/joseph-ayodele/control-mapper/internal/entity"
)

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return m
}

const sample = `{
  "Framework": "CIS",
  "Name": "whatever the tool said",
  "Version": null,
  "Provider": "aws",
  "Extra": {"kept": true},
  "Requirements": [
    {
      "Id": "1.1", "Name": "MFA", "SubGroup": "1.1.a",
      "Attributes": [{"ItemId": "1.1", "Section": "1 IAM", "SubGroup": "1.1.a", "Service": null}],
      "Checks": ["iam_root_mfa_enabled", "iam_user_mfa_enabled"]
    },
    {
      "Id": "1.2", "Name": "Logging", "Description": "Enable trails",
      "Attributes": [{"ItemId": "1.2", "Section": "1 IAM"}],
      "Checks": []
    },
    {
      "Id": "2.1", "Name": "Buckets",
      "Attributes": [],
      "Checks": ["s3_bucket_public_access", "iam_root_mfa_enabled"]
    }
  ]
}`

func TestNormalize(t *testing.T) {
	raw := decode(t, sample)
	changed := Normalize(raw, Options{Provider: "aws", FullName: "CIS AWS Foundations", EnableSubgroup: false})

	if raw["Provider"] != "AWS" {
		t.Fatalf("Provider = %v", raw["Provider"])
	}
	if raw["Name"] != "CIS AWS Foundations" {
		t.Fatalf("Name = %v", raw["Name"])
	}
	if _, ok := raw["Description"]; ok {
		t.Fatalf("Description should be untouched when not configured")
	}
	req := raw["Requirements"].([]any)[0].(map[string]any)
	if _, ok := req["SubGroup"]; ok {
		t.Fatalf("requirement SubGroup not stripped")
	}
	attr := req["Attributes"].([]any)[0].(map[string]any)
	if _, ok := attr["SubGroup"]; ok {
		t.Fatalf("attribute SubGroup not stripped")
	}
	for _, want := range []string{"Provider", "Name", "SubGroup"} {
		if !slices.Contains(changed, want) {
			t.Errorf("changed = %v, missing %s", changed, want)
		}
	}
}

func TestNormalizeKeepsSubGroupWhenEnabled(t *testing.T) {
	raw := decode(t, sample)
	Normalize(raw, Options{Provider: "github", Description: "GitHub mapping", EnableSubgroup: true})
	if raw["Provider"] != "GitHub" || raw["Description"] != "GitHub mapping" {
		t.Fatalf("raw = %v", raw)
	}
	req := raw["Requirements"].([]any)[0].(map[string]any)
	if req["SubGroup"] != "1.1.a" {
		t.Fatalf("SubGroup dropped while enabled")
	}
}

func TestValidateAndSummarize(t *testing.T) {
	raw := decode(t, sample)
	out, err := Validate(raw)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if out.Version != nil {
		t.Fatalf("Version = %v, want nil", out.Version)
	}
	if out.Requirements[1].Description == nil || *out.Requirements[1].Description != "Enable trails" {
		t.Fatalf("description = %v", out.Requirements[1].Description)
	}

	got := Summarize(out)
	want := entity.JobSummary{TotalControls: 3, ControlsWithChecks: 2, TotalCheckMappings: 4, UnmappedControls: 1}
	if got != want {
		t.Fatalf("summary = %+v, want %+v", got, want)
	}

	ids := out.CheckIDs()
	if strings.Join(ids, ",") != "iam_root_mfa_enabled,iam_user_mfa_enabled,s3_bucket_public_access" {
		t.Fatalf("CheckIDs = %v", ids)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"missing requirements": `{"Framework":"X","Name":"X","Provider":"AWS"}`,
		"checks not strings":   `{"Framework":"X","Name":"X","Provider":"AWS","Requirements":[{"Id":"1","Name":"n","Attributes":[],"Checks":[1]}]}`,
		"attribute no section": `{"Framework":"X","Name":"X","Provider":"AWS","Requirements":[{"Id":"1","Name":"n","Attributes":[{"ItemId":"1"}],"Checks":[]}]}`,
		"version wrong type":   `{"Framework":"X","Name":"X","Version":2,"Provider":"AWS","Requirements":[]}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Validate(decode(t, doc))
			if !errors.Is(err, common.ErrValidation) {
				t.Fatalf("err = %v, want ErrValidation", err)
			}
			if !strings.HasPrefix(common.Message(err), "Output validation failed: ") {
				t.Fatalf("message = %q", common.Message(err))
			}
		})
	}
}

func TestSummarizeEmpty(t *testing.T) {
	if got := Summarize(&Output{}); got != (entity.JobSummary{}) {
		t.Fatalf("summary = %+v", got)
	}
}
