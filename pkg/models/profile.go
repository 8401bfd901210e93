package models

// Profile is the tool profile a sub-agent is given when executing a leaf.
type Profile string

const (
	// ProfileEditor can read and modify files.
	ProfileEditor Profile = "editor"
	// ProfileResearcher can search and read, but not modify.
	ProfileResearcher Profile = "researcher"
	// ProfileVCS can operate on version control.
	ProfileVCS Profile = "vcs"
	// ProfileAll has every tool available.
	ProfileAll Profile = "all"
)

// Valid returns true if the profile is a known value.
func (p Profile) Valid() bool {
	switch p {
	case ProfileEditor, ProfileResearcher, ProfileVCS, ProfileAll:
		return true
	default:
		return false
	}
}

// ProfileFromHints returns the first hint naming a specific profile
// (editor, researcher or vcs). If none match, ProfileAll is returned.
func ProfileFromHints(hints []string) Profile {
	for _, h := range hints {
		switch p := Profile(h); p {
		case ProfileEditor, ProfileResearcher, ProfileVCS:
			return p
		}
	}
	return ProfileAll
}
