package pack

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const (
	metaSchemaURL   = "https://deckpack.dev/schemas/meta.schema.json"
	slidesSchemaURL = "https://deckpack.dev/schemas/slides.schema.json"
)

var (
	schemasOnce  sync.Once
	metaSchema   *jsonschema.Schema
	slidesSchema *jsonschema.Schema
	schemasErr   error
)

func compileSchemas() {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020

	for url, file := range map[string]string{
		metaSchemaURL:   "schemas/meta.schema.json",
		slidesSchemaURL: "schemas/slides.schema.json",
	} {
		raw, err := schemaFS.ReadFile(file)
		if err != nil {
			schemasErr = err
			return
		}
		if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
			schemasErr = fmt.Errorf("failed to add schema %s: %w", file, err)
			return
		}
	}
	if metaSchema, schemasErr = c.Compile(metaSchemaURL); schemasErr != nil {
		return
	}
	slidesSchema, schemasErr = c.Compile(slidesSchemaURL)
}

// validateManifest checks raw JSON against the schema for name.
func validateManifest(name string, raw []byte) error {
	schemasOnce.Do(compileSchemas)
	if schemasErr != nil {
		return fmt.Errorf("pack: manifest schemas unavailable: %w", schemasErr)
	}

	schema := metaSchema
	if name == SlidesFile {
		schema = slidesSchema
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPackage, name, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPackage, name, err)
	}
	return nil
}

// checkVersion accepts any 1.x schema version ("v1.0", "1.2.0").
func checkVersion(version string) error {
	v, err := semver.NewVersion(strings.TrimSpace(version))
	if err != nil {
		return fmt.Errorf("%w: schema version %q: %v", ErrUnsupportedVersion, version, err)
	}
	if v.Major() != 1 {
		return fmt.Errorf("%w: schema version %s", ErrUnsupportedVersion, version)
	}
	return nil
}
