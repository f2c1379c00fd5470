package dispatch

import (
	"fmt"
	"strconv"
	"strings"
)

// SubstituteTemplateVars replaces {{n}} placeholders (1-indexed) with the
// corresponding value. Placeholders with no matching value are left in place.
func SubstituteTemplateVars(text string, values []string) string {
	if text == "" || len(values) == 0 {
		return text
	}
	out := text
	for i, v := range values {
		out = strings.ReplaceAll(out, "{{"+strconv.Itoa(i+1)+"}}", v)
	}
	return out
}

// renderTemplate fetches the named template and substitutes the caller's
// variable values into its header and body.
func renderTemplate(def *TemplateDefinition, values []string) (*RenderedTemplate, error) {
	if def == nil {
		return nil, fmt.Errorf("template definition is nil")
	}
	return &RenderedTemplate{
		Name:       def.Name,
		Header:     SubstituteTemplateVars(def.HeaderText, values),
		Body:       SubstituteTemplateVars(def.BodyText, values),
		Parameters: values,
	}, nil
}
