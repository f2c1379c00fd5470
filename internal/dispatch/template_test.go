package dispatch

import "testing"

func TestSubstituteTemplateVars(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		values []string
		want   string
	}{
		{
			name:   "two placeholders",
			text:   "Hi {{1}}, your order {{2}} shipped",
			values: []string{"Alice", "#123"},
			want:   "Hi Alice, your order #123 shipped",
		},
		{
			name: "no values leaves text untouched",
			text: "Hi {{1}}",
			want: "Hi {{1}}",
		},
		{
			name:   "extra values ignored",
			text:   "Hi {{1}}",
			values: []string{"Bob", "unused"},
			want:   "Hi Bob",
		},
		{
			name:   "missing value leaves placeholder",
			text:   "Hi {{1}}, code {{2}}",
			values: []string{"Bob"},
			want:   "Hi Bob, code {{2}}",
		},
		{
			name:   "repeated placeholder",
			text:   "{{1}} and {{1}}",
			values: []string{"x"},
			want:   "x and x",
		},
		{
			name:   "empty text",
			text:   "",
			values: []string{"x"},
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SubstituteTemplateVars(tt.text, tt.values); got != tt.want {
				t.Errorf("SubstituteTemplateVars(%q, %v) = %q, want %q", tt.text, tt.values, got, tt.want)
			}
		})
	}
}
