// Package manifest reads and rewrites NeRF transform manifests (transforms.json).
//
// Only the frames[].file_path field is ever interpreted. Every other value is carried
// through as raw JSON so camera matrices keep their exact digits.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// ImagePrefix is the directory every rewritten file_path points into.
const ImagePrefix = "images/"

// DefaultPath is the manifest rewritten when no path is given.
const DefaultPath = "transforms.json"

// Manifest is a transform manifest as a keyed mapping of raw JSON values.
type Manifest map[string]json.RawMessage

// Parse decodes a manifest. The top level must be a JSON object.
func Parse(data []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("failed to parse manifest: top level is null")
	}
	return m, nil
}

// Marshal encodes the manifest with 4-space indentation and sorted keys.
func (m Manifest) Marshal() ([]byte, error) {
	return json.MarshalIndent(m, "", "    ")
}

// BaseName returns the characters after the last path separator.
// Both '/' and '\' count, so manifests written on Windows are normalized too.
func BaseName(p string) string {
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		return p[i+1:]
	}
	return p
}

// RewritePaths replaces every frame's file_path with "images/<base name>".
// A missing frames key is an empty sequence. A frame without file_path gets "images/";
// a null or non-string file_path is an error.
func RewritePaths(m Manifest) error {
	raw, ok := m["frames"]
	if !ok {
		return nil
	}

	var frames []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &frames); err != nil {
		return fmt.Errorf("frames must be an array of objects: %w", err)
	}

	for i, frame := range frames {
		if frame == nil {
			return fmt.Errorf("frame %d is not an object", i)
		}
		var current string
		if fp, ok := frame["file_path"]; ok {
			if bytes.Equal(bytes.TrimSpace(fp), []byte("null")) {
				return fmt.Errorf("frame %d: file_path must be a string, got null", i)
			}
			if err := json.Unmarshal(fp, &current); err != nil {
				return fmt.Errorf("frame %d: file_path must be a string: %w", i, err)
			}
		}
		rewritten, err := json.Marshal(ImagePrefix + BaseName(current))
		if err != nil {
			return err
		}
		frame["file_path"] = rewritten
	}

	encoded, err := json.Marshal(frames)
	if err != nil {
		return fmt.Errorf("failed to encode frames: %w", err)
	}
	m["frames"] = encoded
	return nil
}

// RewriteFile rewrites the manifest at in and writes the result to out.
// When in == out the original is overwritten and no backup is kept.
func RewriteFile(in, out string) (int, error) {
	data, err := os.ReadFile(in)
	if err != nil {
		return 0, fmt.Errorf("failed to read manifest: %w", err)
	}

	m, err := Parse(data)
	if err != nil {
		return 0, err
	}
	if err := RewritePaths(m); err != nil {
		return 0, err
	}

	encoded, err := m.Marshal()
	if err != nil {
		return 0, fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(out, encoded, 0o644); err != nil {
		return 0, fmt.Errorf("failed to write manifest: %w", err)
	}
	return m.FrameCount(), nil
}

// FrameCount returns the number of entries in frames, or 0 when absent or malformed.
func (m Manifest) FrameCount() int {
	var frames []json.RawMessage
	if raw, ok := m["frames"]; ok && json.Unmarshal(raw, &frames) == nil {
		return len(frames)
	}
	return 0
}
