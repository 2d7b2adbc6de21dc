package output

import (
	"encoding/json"
	"io"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/siteverify/internal/decision"
)

// isYAML reports whether path names a YAML file.
func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// EncodeSummary writes s as indented JSON, or YAML when asYAML is set.
func EncodeSummary(w io.Writer, s decision.Summary, asYAML bool) error {
	if asYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return eris.Wrap(err, "output: encode summary yaml")
		}
		return eris.Wrap(enc.Close(), "output: close summary yaml")
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(s), "output: encode summary json")
}

// StageSummary renders the QA summary for path. The format follows the file
// extension.
func StageSummary(path string, s decision.Summary) (*Staged, error) {
	return Stage(path, func(w io.Writer) error {
		return EncodeSummary(w, s, isYAML(path))
	})
}
