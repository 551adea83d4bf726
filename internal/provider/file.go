package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// File reads the config document from disk. Files ending in .yaml or .yml
// are converted to JSON; anything else is returned as is.
type File struct {
	Path string
}

func (p File) Fetch(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if !p.isYAML() {
		return data, nil
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml config: %w", err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("convert yaml config: %w", err)
	}
	return out, nil
}

func (p File) isYAML() bool {
	switch strings.ToLower(filepath.Ext(p.Path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
