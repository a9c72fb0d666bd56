package crew

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

//go:embed crews/*.yaml
var predefined embed.FS

// ErrUnknownCrew is returned when no predefined crew has the given name.
var ErrUnknownCrew = errors.New("unknown predefined crew")

// PredefinedNames lists the crews shipped with the binary, sorted.
func PredefinedNames() []string {
	entries, err := fs.ReadDir(predefined, "crews")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".yaml") {
			names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
		}
	}
	sort.Strings(names)
	return names
}

// IsPredefined reports whether name is a shipped crew.
func IsPredefined(name string) bool {
	for _, n := range PredefinedNames() {
		if n == name {
			return true
		}
	}
	return false
}

// Predefined parses the shipped crew definition called name, e.g.
// "social_media" or "content_research".
func Predefined(name string) (*Definition, error) {
	if !IsPredefined(name) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCrew, name)
	}
	data, err := predefined.ReadFile(path.Join("crews", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("read crew %s: %w", name, err)
	}
	return ParseDefinition(data)
}
