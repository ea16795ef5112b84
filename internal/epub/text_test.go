package epub

import (
	"testing"
)

func TestDecodeText(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{
			name: "utf-8 with bom",
			data: append([]byte{0xEF, 0xBB, 0xBF}, "<p>é</p>"...),
			want: "<p>é</p>",
		},
		{
			name: "declared latin-1 is decoded and redeclared",
			data: []byte("<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?><p>\xe9</p>"),
			want: "<?xml version=\"1.0\" encoding=\"utf-8\"?><p>é</p>",
		},
		{
			name: "declared utf-8 is kept",
			data: []byte("<?xml version=\"1.0\" encoding=\"UTF-8\"?><p>é</p>"),
			want: "<?xml version=\"1.0\" encoding=\"UTF-8\"?><p>é</p>",
		},
		{
			name: "html meta charset",
			data: []byte("<html><head><meta charset=\"windows-1252\"></head><body>\x93q\x94</body></html>"),
			want: "<html><head><meta charset=\"windows-1252\"></head><body>“q”</body></html>",
		},
		{
			name: "undeclared utf-8",
			data: []byte("body { content: \"→\" }"),
			want: "body { content: \"→\" }",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeText(tt.data)
			if err != nil {
				t.Fatalf("DecodeText() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("DecodeText() = %q, want %q", got, tt.want)
			}
		})
	}
}
