package chatc

import (
	"encoding/json"
	"testing"
)

func TestParseDataURL(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantMIME   string
		wantSuffix string
		wantData   string
		wantErr    bool
	}{
		{
			name:       "png image",
			input:      "data:image/png;base64,aGVsbG8=",
			wantMIME:   "image/png",
			wantSuffix: "png",
			wantData:   "hello",
			wantErr:    false,
		},
		{
			name:       "jpeg maps to jpg",
			input:      "data:image/jpeg;base64,aGk=",
			wantMIME:   "image/jpeg",
			wantSuffix: "jpg",
			wantData:   "hi",
			wantErr:    false,
		},
		{
			name:       "svg with structured suffix",
			input:      "data:image/svg+xml;base64,PHN2Zy8+",
			wantMIME:   "image/svg+xml",
			wantSuffix: "svg",
			wantData:   "<svg/>",
			wantErr:    false,
		},
		{
			name:    "plain url",
			input:   "https://example.com/a.png",
			wantErr: true,
		},
		{
			name:    "missing separator",
			input:   "data:image/png;base64",
			wantErr: true,
		},
		{
			name:    "not base64",
			input:   "data:text/plain,hello",
			wantErr: true,
		},
		{
			name:    "missing media type",
			input:   "data:;base64,aGk=",
			wantErr: true,
		},
		{
			name:    "corrupt payload",
			input:   "data:image/png;base64,@@@",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mime, suffix, data, err := ParseDataURL(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseDataURL() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if mime != tt.wantMIME {
				t.Errorf("ParseDataURL() mime = %v, want %v", mime, tt.wantMIME)
			}
			if suffix != tt.wantSuffix {
				t.Errorf("ParseDataURL() suffix = %v, want %v", suffix, tt.wantSuffix)
			}
			if string(data) != tt.wantData {
				t.Errorf("ParseDataURL() data = %q, want %q", data, tt.wantData)
			}
		})
	}
}

func TestStripQuery(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"https://bucket.example.com/u/1.png?X-Amz-Signature=abc", "https://bucket.example.com/u/1.png"},
		{"https://bucket.example.com/u/1.png#frag", "https://bucket.example.com/u/1.png"},
		{"https://bucket.example.com/u/1.png", "https://bucket.example.com/u/1.png"},
	}

	for _, tt := range tests {
		if got := StripQuery(tt.input); got != tt.want {
			t.Errorf("StripQuery(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestContentJSON(t *testing.T) {
	tests := []struct {
		name string
		turn Turn
		want string
	}{
		{
			name: "text content",
			turn: Turn{Role: RoleUser, Content: TextContent("hello")},
			want: `{"role":"user","content":"hello"}`,
		},
		{
			name: "parts content with id",
			turn: Turn{
				MessageID: Int64(7),
				Role:      RoleUser,
				Content:   PartsContent(TextPart("look"), ImagePart("https://cdn.example.com/a.png")),
			},
			want: `{"message_id":7,"role":"user","content":[{"type":"text","text":"look"},{"type":"image_url","image_url":"https://cdn.example.com/a.png"}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.turn)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Marshal() = %s, want %s", got, tt.want)
			}

			var back Turn
			if err := json.Unmarshal(got, &back); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if back.Content.PlainText() != tt.turn.Content.PlainText() {
				t.Errorf("Unmarshal() text = %q, want %q", back.Content.PlainText(), tt.turn.Content.PlainText())
			}
			if back.Content.IsParts() != tt.turn.Content.IsParts() {
				t.Errorf("Unmarshal() IsParts = %v, want %v", back.Content.IsParts(), tt.turn.Content.IsParts())
			}
		})
	}
}

func TestContentUnmarshalRejectsObjects(t *testing.T) {
	var c Content
	if err := json.Unmarshal([]byte(`{"text":"x"}`), &c); err == nil {
		t.Error("Unmarshal() error = nil, want error for object content")
	}
}

func TestMapImagesLeavesOriginalIntact(t *testing.T) {
	orig := PartsContent(TextPart("a"), ImagePart("data:image/png;base64,aGk="))
	mapped := orig.MapImages(func(string) string { return "https://cdn.example.com/1.png" })

	if got := orig.Images()[0]; got != "data:image/png;base64,aGk=" {
		t.Errorf("original image = %q, want data URL", got)
	}
	if got := mapped.Images()[0]; got != "https://cdn.example.com/1.png" {
		t.Errorf("mapped image = %q, want durable URL", got)
	}
}
