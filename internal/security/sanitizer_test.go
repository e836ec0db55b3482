package security

import (
	"strings"
	"testing"
)

func TestTextSanitizer(t *testing.T) {
	s := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "平文はそのまま", input: "Great rehearsal today", want: "Great rehearsal today"},
		{name: "空文字列", input: "", want: ""},
		{name: "scriptは中身ごと除去", input: "hi<script>alert(1)</script>", want: "hi"},
		{name: "タグのみ除去", input: "<b>bold</b> and <i>italic</i>", want: "bold and italic"},
		{name: "記号はエスケープされない", input: "Tom & Jerry's \"show\"", want: "Tom & Jerry's \"show\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRichTextSanitizer_AllowedTags(t *testing.T) {
	s := NewRichTextSanitizer()

	tests := []struct {
		name         string
		input        string
		wantContains []string
	}{
		{name: "段落", input: "<p>練習日程</p>", wantContains: []string{"<p>練習日程</p>"}},
		{name: "リスト", input: "<ul><li>Alto</li></ul>", wantContains: []string{"<ul>", "<li>Alto</li>"}},
		{name: "強調", input: "<strong>注意</strong>", wantContains: []string{"<strong>注意</strong>"}},
		{name: "https画像", input: `<img src="https://example.com/p.png" alt="poster">`, wantContains: []string{`src="https://example.com/p.png"`, `alt="poster"`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Sanitize(tt.input)
			for _, want := range tt.wantContains {
				if !strings.Contains(got, want) {
					t.Errorf("Sanitize(%q) = %q, want to contain %q", tt.input, got, want)
				}
			}
		})
	}
}

func TestRichTextSanitizer_Removes(t *testing.T) {
	s := NewRichTextSanitizer()

	tests := []struct {
		name       string
		input      string
		notContain string
	}{
		{name: "script", input: "<p>x</p><script>alert(1)</script>", notContain: "<script"},
		{name: "iframe", input: `<iframe src="https://evil"></iframe>`, notContain: "<iframe"},
		{name: "onclick", input: `<p onclick="steal()">x</p>`, notContain: "onclick"},
		{name: "http画像", input: `<img src="http://example.com/a.png">`, notContain: "http://"},
		{name: "javascriptリンク", input: `<a href="javascript:alert(1)">x</a>`, notContain: "javascript:"},
		{name: "div", input: "<div>x</div>", notContain: "<div"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Sanitize(tt.input); strings.Contains(got, tt.notContain) {
				t.Errorf("Sanitize(%q) = %q, must not contain %q", tt.input, got, tt.notContain)
			}
		})
	}
}

func TestRichTextSanitizer_LinkAttributes(t *testing.T) {
	got := NewRichTextSanitizer().Sanitize(`<a href="https://example.com">site</a>`)
	for _, want := range []string{`target="_blank"`, "noopener", "noreferrer"} {
		if !strings.Contains(got, want) {
			t.Errorf("got %q, want to contain %q", got, want)
		}
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	for _, s := range []Sanitizer{NewTextSanitizer(), NewRichTextSanitizer()} {
		in := `<p>Hello <a href="https://example.com">x</a></p><script>bad()</script>`
		once := s.Sanitize(in)
		if twice := s.Sanitize(once); twice != once {
			t.Errorf("not idempotent: %q then %q", once, twice)
		}
	}
}
