package errors

import (
	"strings"
	"testing"
)

func TestValidateArtifactName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"plain gem", "rake-13.0.6.gem", false},
		{"platform gem", "nokogiri-1.15.4-x86_64-linux.gem", false},
		{"java gem", "jruby-openssl-0.14.2-java.gem", false},
		{"dots in version", "foo-1.0.0.rc1.gem", false},

		{"empty", "", true},
		{"too long", strings.Repeat("a", 300), true},
		{"slash", "../etc/passwd", true},
		{"nested", "gems/foo-1.0.gem", true},
		{"backslash", "foo\\bar.gem", true},
		{"dot prefix", ".hidden.gem", true},
		{"dotdot", "..", true},
		{"null byte", "foo\x00.gem", true},
		{"newline", "foo\n.gem", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateArtifactName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateArtifactName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !Is(err, ErrCodeInvalidArtifact) {
				t.Errorf("ValidateArtifactName(%q) code = %v, want %v", tt.input, GetCode(err), ErrCodeInvalidArtifact)
			}
		})
	}
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"gem path", "gems/rake-13.0.6.gem", false},
		{"index file", "specs.4.8.gz", false},

		{"empty", "", true},
		{"absolute", "/etc/passwd", true},
		{"traversal", "gems/../../etc/passwd", true},
		{"backslash", "gems\\rake.gem", true},
		{"control", "gems/\x01", true},
		{"too long", strings.Repeat("a", 501), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePath(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePath(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"https", "https://rubygems.org/", false},
		{"http", "http://localhost:8080", false},
		{"empty", "", true},
		{"ftp", "ftp://example.com", true},
		{"no scheme", "rubygems.org", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
