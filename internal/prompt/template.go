// Package prompt provides typed prompt templates with declared slots,
// validated before any network dispatch.
package prompt

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var slotPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Template is a prompt with named slots of the form {{slot}}. Every slot
// referenced in the text must be supplied at render time; a missing slot is a
// caller error, never a fallback condition.
type Template struct {
	name  string
	text  string
	slots []string
}

// New scans text for slots and returns the template.
func New(name, text string) Template {
	seen := map[string]bool{}
	var slots []string
	for _, m := range slotPattern.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			slots = append(slots, m[1])
		}
	}
	sort.Strings(slots)
	return Template{name: name, text: text, slots: slots}
}

// Name identifies the template in errors and logs.
func (t Template) Name() string { return t.name }

// Slots lists the declared slot names.
func (t Template) Slots() []string {
	out := make([]string, len(t.slots))
	copy(out, t.slots)
	return out
}

// Render substitutes inputs into the template. It fails when a declared slot
// has no input; unused inputs are also rejected to catch typoed keys.
func (t Template) Render(inputs map[string]string) (string, error) {
	var missing []string
	for _, s := range t.slots {
		if _, ok := inputs[s]; !ok {
			missing = append(missing, s)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("template %s: missing inputs: %s", t.name, strings.Join(missing, ", "))
	}
	for k := range inputs {
		if !contains(t.slots, k) {
			return "", fmt.Errorf("template %s: unknown input %q", t.name, k)
		}
	}
	out := t.text
	for k, v := range inputs {
		out = strings.ReplaceAll(out, "{{"+k+"}}", v)
	}
	return out, nil
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
