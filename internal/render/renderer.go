// Package render turns computed statistics into SVG badges by substituting
// "{{ key }}" placeholders in template files.
package render

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Template and output file names.
const (
	OverviewTemplate   = "overview.svg"
	LanguagesTemplate  = "languages.svg"
	RepoStatusTemplate = "repo_status.svg"

	OverviewOutput  = "overview.svg"
	LanguagesOutput = "languages.svg"
)

// ErrTemplateNotFound is returned when the expected template file does not exist.
var ErrTemplateNotFound = errors.New("template not found")

// Renderer reads templates from one directory and writes badges to another.
type Renderer struct {
	templateDir string
	outputDir   string
	logger      *zap.Logger
}

// NewRenderer creates a new Renderer instance.
func NewRenderer(templateDir, outputDir string, logger *zap.Logger) *Renderer {
	return &Renderer{
		templateDir: templateDir,
		outputDir:   outputDir,
		logger:      logger,
	}
}

// OutputDir returns the directory badges are written to.
func (r *Renderer) OutputDir() string {
	return r.outputDir
}

// Render loads the named template and replaces every "{{ key }}" token with values[key].
// Tokens without a value are left untouched.
func (r *Renderer) Render(templateName string, values map[string]string) (string, error) {
	path := filepath.Join(r.templateDir, templateName)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read template %s: %w", path, err)
	}
	return Substitute(string(data), values), nil
}

// Substitute performs the literal placeholder replacement used by Render.
func Substitute(template string, values map[string]string) string {
	pairs := make([]string, 0, len(values)*2)
	for key, value := range values {
		pairs = append(pairs, "{{ "+key+" }}", value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// Write stores a rendered badge under the output directory.
func (r *Renderer) Write(fileName, content string) error {
	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir %s: %w", r.outputDir, err)
	}
	path := filepath.Join(r.outputDir, fileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write badge %s: %w", path, err)
	}
	r.logger.Debug("badge written", zap.String("path", path))
	return nil
}

func (r *Renderer) renderTo(templateName, outputName string, values map[string]string) error {
	out, err := r.Render(templateName, values)
	if err != nil {
		return err
	}
	return r.Write(outputName, out)
}
