package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/parisxmas/OxiDB/OxiAudit/internal/questionnaire"
)

// readDocument loads a section document from a JSON or YAML file.
func readDocument(path string) (questionnaire.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return questionnaire.Document{}, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return questionnaire.DecodeYAMLDocument(data)
	}
	return questionnaire.DecodeDocument(data)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseValue reads an answer given on the command line: JSON when it parses,
// the raw string otherwise.
func parseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}

func loadAnswers(paths []string) (questionnaire.AnswerMap, error) {
	out := questionnaire.AnswerMap{}
	for _, p := range paths {
		doc, err := readDocument(p)
		if err != nil {
			return nil, fmt.Errorf("cross-section %s: %w", p, err)
		}
		out = out.Merge(questionnaire.ExtractDocumentAnswers(doc))
	}
	return out, nil
}
