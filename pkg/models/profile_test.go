package models

import "testing"

func TestProfileFromHints(t *testing.T) {
	tests := []struct {
		name  string
		hints []string
		want  Profile
	}{
		{"no hints", nil, ProfileAll},
		{"unrelated hints", []string{"write_file", "grep"}, ProfileAll},
		{"editor", []string{"editor"}, ProfileEditor},
		{"first matching hint wins", []string{"read_file", "vcs", "editor"}, ProfileVCS},
		{"all is not a specific profile", []string{"all", "researcher"}, ProfileResearcher},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ProfileFromHints(tt.hints); got != tt.want {
				t.Errorf("ProfileFromHints(%v) = %q, want %q", tt.hints, got, tt.want)
			}
		})
	}
}

func TestProfile_Valid(t *testing.T) {
	for _, p := range []Profile{ProfileEditor, ProfileResearcher, ProfileVCS, ProfileAll} {
		if !p.Valid() {
			t.Errorf("Profile(%q).Valid() = false, want true", p)
		}
	}
	if Profile("admin").Valid() {
		t.Error("unknown profile should be invalid")
	}
}
