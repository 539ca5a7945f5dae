package rules

import (
	"embed"
	"fmt"
	"sort"
	"strings"
)

//go:embed packs/*.yaml
var packFS embed.FS

// loadEmbedded parses the built-in packs. Framework packs come back in file
// name order; the generic pack is returned separately because it always
// evaluates last at equal priority.
func loadEmbedded() ([]*Pack, *Pack, error) {
	entries, err := packFS.ReadDir("packs")
	if err != nil {
		return nil, nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".yaml") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var frameworks []*Pack
	var generic *Pack
	for _, name := range names {
		data, err := packFS.ReadFile("packs/" + name)
		if err != nil {
			return nil, nil, err
		}
		pack, err := ParsePack(data, "embedded:"+name)
		if err != nil {
			return nil, nil, err
		}
		if pack.Name == "generic" {
			generic = pack
			continue
		}
		frameworks = append(frameworks, pack)
	}
	if generic == nil {
		return nil, nil, fmt.Errorf("generic pack missing from embedded packs")
	}
	return frameworks, generic, nil
}

// EmbeddedPackNames lists the built-in packs, generic last.
func EmbeddedPackNames() ([]string, error) {
	frameworks, generic, err := loadEmbedded()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(frameworks)+1)
	for _, p := range frameworks {
		names = append(names, p.Name)
	}
	return append(names, generic.Name), nil
}
