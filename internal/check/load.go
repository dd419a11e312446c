package check

import (
	"fmt"
	"os"

	"github.com/shahbajlive/flowrun/internal/syntax"
)

// Load reads, parses, and validates a workflow document.
func Load(path string, opts Options) (*syntax.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	doc, err := syntax.ParseDocument(string(data), path)
	if err != nil {
		return nil, err
	}
	if err := Check(doc, opts); err != nil {
		return nil, err
	}
	return doc, nil
}
