package contextfilter

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Space is a document space: a fragment of exported file names plus the
// prompt keywords that make files of that space relevant. Keywords that
// could occur inside other words carry a leading space on purpose.
type Space struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

type spacesFile struct {
	Spaces []Space `yaml:"spaces"`
}

// LoadSpaces reads a YAML file of the form
//
//	spaces:
//	  - name: hiring
//	    keywords: [new hire, interview]
func LoadSpaces(path string) ([]Space, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read spaces file: %w", err)
	}
	var f spacesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse spaces file %s: %w", path, err)
	}
	for i, sp := range f.Spaces {
		if sp.Name == "" {
			return nil, fmt.Errorf("spaces file %s: entry %d has no name", path, i)
		}
	}
	return f.Spaces, nil
}

// DefaultSpaces is the built-in wiki space table. Large spaces are split
// into their main pages.
func DefaultSpaces() []Space {
	return []Space{
		{Name: "hiring", Keywords: []string{"new employee", "new hire", "new colleague", "interview", "cv"}},
		{Name: "ip follow-up", Keywords: []string{" ip", "invention"}},
		{Name: "lunch & learn", Keywords: []string{"l&l", "lunch"}},
		{Name: "office wiki", Keywords: []string{"office", "building", "at work", "sofics"}},
		{Name: "samsung", Keywords: []string{"samsung"}},
		{Name: "sharknet help", Keywords: []string{"sharknet"}},
		{Name: "it admin", Keywords: []string{"admin", "localadmin"}},
		{Name: "labadmin", Keywords: []string{"admin", " lab"}},
		{Name: "technoadmin", Keywords: []string{"admin", "techno"}},
		{Name: "tooladmin", Keywords: []string{"admin", "tool"}},
		{Name: "wiki admin", Keywords: []string{"admin"}},
		{Name: "sofics r&d", Keywords: []string{"r&d", "research", "development", "invention"}},
		{Name: "pq pmg admin", Keywords: []string{" esd", "powerqubic", "pq", "testchip", "ehc", "rcs", "smos"}},
		{Name: "takecharge portfolio management", Keywords: []string{"takecharge"}},
		{Name: "phystar pmg", Keywords: []string{"phystar"}},
		{Name: "shark wiki esd design", Keywords: []string{" esd", "testchip", "ehc", "rcs", "smos"}},
		{Name: "shark wiki circuit design", Keywords: []string{"analog", " io", "levelshift", "amplifier", "noise", "clock", "i/o", "ovt", "ldo", "circuit design", "lin", "can"}},
		{Name: "shark wiki lab", Keywords: []string{"lab", "equipment"}},
		{Name: "shark wiki software & simulations", Keywords: []string{"simulation", "program", "software", " tool", "teggy", "pyshark"}},
		{Name: "shark wiki standards", Keywords: []string{"standard", " iso", " iec", "hbm standard", "cdm standard"}},
		{Name: "shark wiki prodedures and manuals", Keywords: []string{"procedure", "the way to", "manual", "how to"}},
		{Name: "business development bd", Keywords: []string{" bd", "business", "nda"}},
		{Name: "business development customers", Keywords: []string{"correspondent", "customer"}},
		{Name: "business development marketing", Keywords: []string{"marketing", "blog", "promotion", "press"}},
		{Name: "business development events", Keywords: []string{"event", " boot", "conference"}},
	}
}
