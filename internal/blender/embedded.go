package blender

import (
	"embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

//go:embed assets/bridge.py
var assets embed.FS

// BridgeScript is the file name of the script run inside the host application.
const BridgeScript = "bridge.py"

// extractBridge writes the bridge script into dir and returns its path.
func extractBridge(dir string) (string, error) {
	src, err := assets.Open("assets/" + BridgeScript)
	if err != nil {
		return "", err
	}
	defer src.Close()

	dest := filepath.Join(dir, BridgeScript)
	if err := extractFile(src, dest); err != nil {
		return "", fmt.Errorf("failed to extract %s: %w", BridgeScript, err)
	}
	return dest, nil
}

func extractFile(src io.Reader, destPath string) error {
	outFile, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer outFile.Close()

	_, err = io.Copy(outFile, src)
	return err
}
