package archive

import (
	"fmt"
	"io"

	"go.yaml.in/yaml/v3"
)

// exportVersion is bumped when the export layout changes incompatibly.
const exportVersion = 1

type exportFile struct {
	Version  int        `yaml:"version"`
	Archives []*Archive `yaml:"archives"`
}

// ExportYAML writes archives to w as a single YAML document.
func ExportYAML(w io.Writer, archives ...*Archive) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(exportFile{Version: exportVersion, Archives: archives}); err != nil {
		return fmt.Errorf("encode archives: %w", err)
	}
	return enc.Close()
}

// ImportYAML reads archives written by ExportYAML. Patterns missing a task
// type inherit their archive's.
func ImportYAML(r io.Reader) ([]*Archive, error) {
	var f exportFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode archives: %w", err)
	}
	if f.Version != exportVersion {
		return nil, fmt.Errorf("unsupported archive export version %d", f.Version)
	}

	for i, a := range f.Archives {
		if a == nil {
			return nil, fmt.Errorf("archive %d is empty", i)
		}
		if a.TaskType == "" {
			return nil, fmt.Errorf("archive %d has no task type", i)
		}
		for j := range a.Entries {
			p := &a.Entries[j].Pattern
			if p.ID == "" {
				return nil, fmt.Errorf("archive %s entry %d has no pattern id", a.TaskType, j)
			}
			if p.TaskType == "" {
				p.TaskType = a.TaskType
			}
		}
	}
	return f.Archives, nil
}
