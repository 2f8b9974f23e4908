package claude

import (
	"errors"
	"strings"
	"testing"

	"github.com/joseph-ayodele/control-mapper/internal/common"
)

func TestExtract(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string // Framework value
	}{
		{name: "direct", in: `{"Framework":"CIS","Requirements":[]}`, want: "CIS"},
		{name: "direct requirements only", in: `  {"Requirements":[]}  `, want: ""},
		{name: "envelope object", in: `{"type":"result","result":{"Framework":"NIST"}}`, want: "NIST"},
		{name: "envelope json string", in: `{"type":"result","result":"{\"Framework\":\"ENS\"}"}`, want: "ENS"},
		{name: "fenced json", in: "Sure!\n```json\n{\"Framework\":\"ISO\",\"Requirements\":[]}\n```\nDone.", want: "ISO"},
		{name: "fenced plain", in: "```\n{\"Framework\":\"SOC2\"}\n```", want: "SOC2"},
		{name: "pattern", in: `Result: {"Framework":"PCI","Requirements":[{"Id":"1"}]} thanks`, want: "PCI"},
		{name: "braces", in: `noise {bad} then {"Framework":"HIPAA"} and {"x":1`, want: "HIPAA"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Extract(tc.in)
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			fw, _ := got["Framework"].(string)
			if fw != tc.want {
				t.Fatalf("Framework = %q, want %q (got %v)", fw, tc.want, got)
			}
		})
	}
}

func TestExtractEmptyOutput(t *testing.T) {
	_, err := Extract("   \n")
	if !errors.Is(err, common.ErrOutputParsing) {
		t.Fatalf("err = %v, want ErrOutputParsing", err)
	}
	if common.Message(err) != "Claude returned empty output" {
		t.Fatalf("message = %q", common.Message(err))
	}
}

func TestExtractNoJSON(t *testing.T) {
	in := strings.Repeat("no json here ", 100)
	_, err := Extract(in)
	if !errors.Is(err, common.ErrOutputParsing) {
		t.Fatalf("err = %v, want ErrOutputParsing", err)
	}
	msg := common.Message(err)
	if !strings.HasPrefix(msg, "Could not extract valid JSON from Claude output. Output preview: no json here") {
		t.Fatalf("message = %q", msg)
	}
	if !strings.HasSuffix(msg, "...") {
		t.Fatalf("preview not elided: %q", msg)
	}
}

func TestExtractEnvelopeStringWithoutJSON(t *testing.T) {
	_, err := Extract(`{"type":"result","result":"I could not find any controls."}`)
	if !errors.Is(err, common.ErrOutputParsing) {
		t.Fatalf("err = %v, want ErrOutputParsing", err)
	}
	if !strings.Contains(common.Message(err), "I could not find any controls.") {
		t.Fatalf("message = %q", common.Message(err))
	}
}

func TestExtractEnvelopeWithoutResult(t *testing.T) {
	for _, in := range []string{
		`{"type":"result","subtype":"success","is_error":false}`,
		`{"type":"result","subtype":"success","is_error":false,"result":null}`,
		`{"type":"result","subtype":"success","is_error":false,"result":42}`,
	} {
		v, err := Extract(in)
		if !errors.Is(err, common.ErrOutputParsing) {
			t.Fatalf("Extract(%s) = %v, %v; want ErrOutputParsing", in, v, err)
		}
	}
}

func TestExtractDirectNeedsMappingKeys(t *testing.T) {
	// not a mapping on its own; the pattern strategy still finds the object
	got, err := Extract(`{"foo":"bar"}`)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if _, err := fromDirect(`{"foo":"bar"}`); !errors.Is(err, errNoMatch) {
		t.Fatalf("direct accepted an object without Framework or Requirements")
	}
	if got["foo"] != "bar" {
		t.Fatalf("got %v", got)
	}
}
