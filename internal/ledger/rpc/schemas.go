package rpc

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"path"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const (
	schemaRoom      = "room"
	schemaPlayer    = "player"
	schemaOccupants = "occupants"
	schemaGlobal    = "global"
)

type schemaSet map[string]*jsonschema.Schema

func loadSchemas() (schemaSet, error) {
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	urls := map[string]string{}
	for _, e := range entries {
		raw, err := schemaFS.ReadFile(path.Join("schemas", e.Name()))
		if err != nil {
			return nil, err
		}
		url := "mem://relay/" + e.Name()
		if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("schema %s: %w", e.Name(), err)
		}
		urls[e.Name()[:len(e.Name())-len(".schema.json")]] = url
	}
	set := schemaSet{}
	for name, url := range urls {
		s, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", name, err)
		}
		set[name] = s
	}
	return set, nil
}

func (s schemaSet) validate(name string, raw json.RawMessage) error {
	sch, ok := s[name]
	if !ok {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	return sch.Validate(v)
}
