// Package persist serializes the declarative rule set to a durable JSON
// file and loads it back at startup. VIF bindings are never persisted: they
// are an implementation artifact of the previous engine instance and are
// rebuilt by replaying the loaded rules through the Transactional
// Controller.
package persist

import (
	"encoding/json"
	"os"

	"github.com/google/renameio"

	"github.com/marmos91/mfcd/internal/logger"
	"github.com/marmos91/mfcd/pkg/mfcerr"
	"github.com/marmos91/mfcd/pkg/rules"
)

// document is the on-disk shape: a single top-level key, mfc_rules.
type document struct {
	Rules []ruleDoc `json:"mfc_rules"`
}

type ruleDoc struct {
	Source string   `json:"source"`
	Group  string   `json:"group"`
	IIF    string   `json:"iif"`
	OIFs   []string `json:"oifs"`
}

// Save writes the given rules to path atomically: a temporary file in the
// same directory is written first, then renamed over the final path so a
// crash mid-write never corrupts the existing file. On any I/O error the
// existing file is left untouched and the error is logged, not returned, in
// this package's Go sibling of the standalone CLI use (see SaveErr for the
// variant that does return it).
func Save(path string, list []rules.Rule) {
	if err := SaveErr(path, list); err != nil {
		logger.Warn("failed to persist rule state", logger.StateFile(path), logger.Err(err))
	}
}

// SaveErr is the error-returning form of Save, used by callers (such as
// tests) that want to assert on persistence failures directly.
func SaveErr(path string, list []rules.Rule) error {
	doc := document{Rules: make([]ruleDoc, 0, len(list))}
	for _, r := range list {
		doc.Rules = append(doc.Rules, ruleDoc{Source: r.Source, Group: r.Group, IIF: r.IIF, OIFs: r.OIFs})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return mfcerr.Wrap(mfcerr.KindPersistence, "marshal state file", err)
	}

	if err := renameio.WriteFile(path, data, 0644); err != nil {
		return mfcerr.Wrap(mfcerr.KindPersistence, "write state file", err)
	}
	return nil
}

// Load reads the rule set from path. A missing file yields an empty list.
// A present-but-unparsable file is logged and also yields an empty list
// (fail-open): a broken state file must never prevent the engine from
// running, since MRT_INIT already gives it control of the kernel.
func Load(path string) []rules.Rule {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		logger.Warn("failed to read state file, starting with an empty rule set", logger.StateFile(path), logger.Err(err))
		return nil
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		logger.Warn("failed to parse state file, starting with an empty rule set", logger.StateFile(path), logger.Err(err))
		return nil
	}

	out := make([]rules.Rule, 0, len(doc.Rules))
	for _, r := range doc.Rules {
		out = append(out, rules.Rule{Source: r.Source, Group: r.Group, IIF: r.IIF, OIFs: r.OIFs})
	}
	return out
}
