package scene

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// TextureKeywords are matched against file names in the texture directory, in this order.
var TextureKeywords = []string{
	"albedo", "diffuse", "color", "normal", "roughness", "metallic",
	"emissive", "ao", "ambient_occlusion", "opacity", "alpha",
}

// Texture is an image file chosen for one keyword.
type Texture struct {
	Keyword string `json:"keyword"`
	Path    string `json:"path"`
}

// MatchTextures picks, for every keyword, the lexicographically first file in dir whose
// name contains it. Keywords without a match are left out. Hidden files and
// subdirectories are never candidates.
func MatchTextures(dir string) ([]Texture, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read texture dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var matched []Texture
	for _, kw := range TextureKeywords {
		for _, name := range names {
			if strings.Contains(name, kw) {
				matched = append(matched, Texture{Keyword: kw, Path: filepath.Join(dir, name)})
				break
			}
		}
	}
	return matched, nil
}
