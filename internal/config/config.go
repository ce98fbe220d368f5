package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"go.uber.org/multierr"
)

// Environment variable names read by the renderer.
const (
	EnvExportDir      = "EXPORT_DIR"
	EnvModelDir       = "MODEL_DIR"
	EnvModelName      = "MODEL_NAME"
	EnvNumImages      = "NUM_IMAGES"
	EnvResolutionV    = "IMAGE_RESOLUTION_V"
	EnvResolutionH    = "IMAGE_RESOLUTION_H"
	EnvFocalLength    = "FOCAL_LENGTH"
	EnvCameraDistance = "CAMERA_DISTANCE"
	EnvTextureDir     = "TEXTURE_DIR"
	DefaultDotEnvFile = ".env"
)

// ErrMissingEnv marks a required variable that is unset or empty.
var ErrMissingEnv = errors.New("missing required environment variable")

// ErrInvalidEnv marks a variable whose value cannot be parsed or is out of range.
var ErrInvalidEnv = errors.New("invalid environment variable")

// Render holds everything the scene renderer needs. It is populated once at startup.
type Render struct {
	ExportDir      string
	ModelDir       string
	ModelName      string
	NumImages      int
	ResolutionV    int
	ResolutionH    int
	FocalLength    float64
	CameraDistance float64

	// TextureDir is optional; empty disables texture matching.
	TextureDir string
}

// ModelPath is MODEL_DIR joined with MODEL_NAME.
func (r Render) ModelPath() string {
	return filepath.Join(r.ModelDir, r.ModelName)
}

// OutputDir is where frames land: <EXPORT_DIR>/<model name up to the first dot>/images.
func (r Render) OutputDir() string {
	return filepath.Join(r.ExportDir, strings.SplitN(r.ModelName, ".", 2)[0], "images")
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// LoadDotEnv loads path into the process environment if it exists.
// Variables already set in the environment are not overridden.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// LoadRender reads and validates the render configuration.
// Every problem is reported in one error so the user can fix them all at once.
func LoadRender(lookup LookupFunc) (Render, error) {
	var cfg Render
	var errs error

	str := func(key string) string {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		if !ok || v == "" {
			errs = multierr.Append(errs, fmt.Errorf("%w: %s", ErrMissingEnv, key))
			return ""
		}
		return v
	}
	integer := func(key string) int {
		raw := str(key)
		if raw == "" {
			return 0
		}
		n, err := cast.ToIntE(decimal(raw))
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidEnv, key, raw))
			return 0
		}
		if n <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidEnv, key, n))
		}
		return n
	}
	float := func(key string) float64 {
		raw := str(key)
		if raw == "" {
			return 0
		}
		f, err := cast.ToFloat64E(raw)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%w: %s=%q is not a number", ErrInvalidEnv, key, raw))
			return 0
		}
		if f <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("%w: %s must be positive, got %g", ErrInvalidEnv, key, f))
		}
		return f
	}

	cfg.ExportDir = str(EnvExportDir)
	cfg.ModelDir = str(EnvModelDir)
	cfg.ModelName = str(EnvModelName)
	cfg.NumImages = integer(EnvNumImages)
	cfg.ResolutionV = integer(EnvResolutionV)
	cfg.ResolutionH = integer(EnvResolutionH)
	cfg.FocalLength = float(EnvFocalLength)
	cfg.CameraDistance = float(EnvCameraDistance)

	if v, ok := lookup(EnvTextureDir); ok {
		cfg.TextureDir = strings.TrimSpace(v)
	}

	// NUM_IMAGES=1 would need a zero-width vertical grid
	if cfg.NumImages == 1 {
		errs = multierr.Append(errs, fmt.Errorf("%w: %s must be at least 2, got 1", ErrInvalidEnv, EnvNumImages))
	}

	if errs != nil {
		return Render{}, errs
	}
	return cfg, nil
}

// MapLookup adapts a map to a LookupFunc.
func MapLookup(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

// decimal strips leading zeros so cast does not read "0720" as octal.
// Prefixed forms such as "0x10" lose their zero and fail to parse.
func decimal(raw string) string {
	sign := ""
	if strings.HasPrefix(raw, "-") || strings.HasPrefix(raw, "+") {
		sign, raw = raw[:1], raw[1:]
	}
	trimmed := strings.TrimLeft(raw, "0")
	if trimmed == "" && raw != "" {
		trimmed = "0"
	}
	return sign + trimmed
}
