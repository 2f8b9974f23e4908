package mapping

import (
	"github.com/joseph-ayodele/control-mapper/constants"
)

type Options struct {
	Provider       string
	FullName       string
	Description    string
	EnableSubgroup bool
}

// Normalize rewrites the fields we own regardless of what the tool returned:
// Provider always, Name and Description when configured, and SubGroup is
// removed everywhere when subgroups are disabled. It returns what it touched.
func Normalize(raw map[string]any, opts Options) []string {
	var changed []string
	set := func(key, val string) {
		if cur, ok := raw[key].(string); !ok || cur != val {
			changed = append(changed, key)
		}
		raw[key] = val
	}

	set("Provider", constants.ProviderDisplayName(opts.Provider))
	if opts.FullName != "" {
		set("Name", opts.FullName)
	}
	if opts.Description != "" {
		set("Description", opts.Description)
	}

	if !opts.EnableSubgroup {
		reqs, _ := raw["Requirements"].([]any)
		stripped := 0
		for _, r := range reqs {
			req, ok := r.(map[string]any)
			if !ok {
				continue
			}
			if _, ok := req["SubGroup"]; ok {
				delete(req, "SubGroup")
				stripped++
			}
			attrs, _ := req["Attributes"].([]any)
			for _, a := range attrs {
				attr, ok := a.(map[string]any)
				if !ok {
					continue
				}
				if _, ok := attr["SubGroup"]; ok {
					delete(attr, "SubGroup")
					stripped++
				}
			}
		}
		if stripped > 0 {
			changed = append(changed, "SubGroup")
		}
	}
	return changed
}
