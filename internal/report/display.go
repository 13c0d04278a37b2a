package report

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// DefaultDescription is used for documents without a configured description
const DefaultDescription = "Document content and extracted data"

// DisplayName turns a base name into a section title: "finish_schedule_tiling" -> "Finish Schedule: Tiling"
func DisplayName(base string) string {
	name := cases.Title(language.English).String(strings.ReplaceAll(base, "_", " "))
	return strings.Replace(name, "Finish Schedule ", "Finish Schedule: ", 1)
}

// Descriptions maps base names to the one-line description shown in the table of contents
type Descriptions map[string]string

// For returns the description for base, or DefaultDescription
func (d Descriptions) For(base string) string {
	if desc, ok := d[base]; ok && desc != "" {
		return desc
	}
	return DefaultDescription
}

// LoadDescriptions reads a YAML mapping of base name to description.
// An empty path yields an empty set.
func LoadDescriptions(path string) (Descriptions, error) {
	if path == "" {
		return Descriptions{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var d Descriptions
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parsing descriptions %s: %w", path, err)
	}
	if d == nil {
		d = Descriptions{}
	}
	return d, nil
}
