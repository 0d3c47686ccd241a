package object

import (
	"errors"
	"testing"
)

func TestCleanKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		key     string
		want    string
		wantErr bool
	}{
		{name: "simple", key: "resumes/abc.pdf", want: "resumes/abc.pdf"},
		{name: "redundant segments", key: "resumes//./abc.pdf", want: "resumes/abc.pdf"},
		{name: "backslashes", key: `coverletters\abc.pdf`, want: "coverletters/abc.pdf"},
		{name: "inner parent collapses", key: "resumes/x/../abc.pdf", want: "resumes/abc.pdf"},
		{name: "empty", key: "  ", wantErr: true},
		{name: "absolute", key: "/etc/passwd", wantErr: true},
		{name: "escapes root", key: "../secret.pdf", wantErr: true},
		{name: "escapes via inner parent", key: "resumes/../../secret.pdf", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := CleanKey(tt.key)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidKey) {
					t.Fatalf("CleanKey(%q) err = %v, want ErrInvalidKey", tt.key, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("CleanKey(%q): %v", tt.key, err)
			}
			if got != tt.want {
				t.Fatalf("CleanKey(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}
