package css

import (
	"reflect"
	"testing"
)

func TestProperties(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []Property
	}{
		{
			name: "simple declarations",
			body: "{ color: red ; margin:0; }",
			want: []Property{
				{Name: "color", Value: "red", HasValue: true},
				{Name: "margin", Value: "0", HasValue: true},
			},
		},
		{
			name: "unparseable kept verbatim",
			body: "{ @apply --mixin; background: url(http://x/y.png) }",
			want: []Property{
				{Name: "@apply --mixin"},
				{Name: "background: url(http://x/y.png)"},
			},
		},
		{
			name: "empty body",
			body: "{ ; ; }",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Properties(tt.body, 0, len(tt.body)-1)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Properties() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestProperties_InvalidBraces(t *testing.T) {
	if got := Properties("p { }", 4, 2); got != nil {
		t.Errorf("Properties() = %+v, want nil", got)
	}
}

func TestFormatProperties(t *testing.T) {
	props := []Property{
		{Name: "color", Value: "red", HasValue: true},
		{Name: "@apply x"},
	}

	tests := []struct {
		name      string
		props     []Property
		multiLine bool
		indent    int
		want      string
	}{
		{name: "single line", props: props, want: " color: red; @apply x; "},
		{name: "multi line", props: props, multiLine: true, want: "\n    color: red;\n    @apply x;\n"},
		{name: "multi line indented", props: props[:1], multiLine: true, indent: 4, want: "\n        color: red;\n    "},
		{name: "empty single", props: nil, want: ""},
		{name: "empty multi", props: nil, multiLine: true, indent: 4, want: "\n    "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatProperties(tt.props, tt.multiLine, tt.indent); got != tt.want {
				t.Errorf("FormatProperties() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestApplyPropertyChange(t *testing.T) {
	base := []Property{
		{Name: "Font-Weight", Value: "BOLD", HasValue: true},
		{Name: "color", Value: "red", HasValue: true},
	}

	tests := []struct {
		name  string
		pName string
		value string
		want  []Property
	}{
		{
			name:  "same value toggles off",
			pName: "font-weight",
			value: "bold",
			want:  []Property{{Name: "color", Value: "red", HasValue: true}},
		},
		{
			name:  "other value replaces",
			pName: "color",
			value: "blue",
			want: []Property{
				{Name: "Font-Weight", Value: "BOLD", HasValue: true},
				{Name: "color", Value: "blue", HasValue: true},
			},
		},
		{
			name:  "missing appends",
			pName: "text-align",
			value: "center",
			want: []Property{
				{Name: "Font-Weight", Value: "BOLD", HasValue: true},
				{Name: "color", Value: "red", HasValue: true},
				{Name: "text-align", Value: "center", HasValue: true},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ApplyPropertyChange(base, tt.pName, tt.value)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ApplyPropertyChange() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFormatStyleAt(t *testing.T) {
	text := "p { color: red; }\nh1 {\n    margin: 0;\n}"

	tests := []struct {
		name   string
		pos    int
		pName  string
		value  string
		want   string
		wantOK bool
	}{
		{
			name:   "single line rule stays single line",
			pos:    5,
			pName:  "font-weight",
			value:  "bold",
			want:   "p { color: red; font-weight: bold; }\nh1 {\n    margin: 0;\n}",
			wantOK: true,
		},
		{
			name:   "multi line rule toggles off",
			pos:    27,
			pName:  "margin",
			value:  "0",
			want:   "p { color: red; }\nh1 {\n}",
			wantOK: true,
		},
		{
			name:   "caret after last rule",
			pos:    len(text),
			pName:  "margin",
			value:  "0",
			want:   text,
			wantOK: false,
		},
		{
			name:   "empty value",
			pos:    5,
			pName:  "color",
			value:  "",
			want:   text,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FormatStyleAt(text, tt.pos, tt.pName, tt.value)
			if ok != tt.wantOK {
				t.Fatalf("FormatStyleAt() ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("FormatStyleAt() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatStyleAt_BraceOnNextLine(t *testing.T) {
	text := "h1 { x: y }\nh2\n{\n    color: red;\n}"
	got, ok := FormatStyleAt(text, 13, "color", "blue")
	if !ok {
		t.Fatal("FormatStyleAt() ok = false, want true")
	}
	want := "h1 { x: y }\nh2\n{\n    color: blue;\n}"
	if got != want {
		t.Errorf("FormatStyleAt() = %q, want %q", got, want)
	}
}
