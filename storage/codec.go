// Package storage persists mind-map snapshots: codecs for the on-disk
// formats, a directory store, a SQLite store and a watcher that reports
// snapshot files changed by other processes.
package storage

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/phroun/mindmap"
)

// Codec converts snapshots to and from bytes.
type Codec interface {
	// Name is the format name used in configuration ("json", "yaml").
	Name() string

	// Ext is the file extension, including the dot.
	Ext() string

	Marshal(snap *mindmap.Snapshot) ([]byte, error)
	Unmarshal(data []byte) (*mindmap.Snapshot, error)
}

// JSON is the default codec.
var JSON Codec = jsonCodec{}

// YAML writes human-editable snapshots.
var YAML Codec = yamlCodec{}

// CodecFor returns the codec with the given name.
func CodecFor(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	}
	return nil, fmt.Errorf("unknown snapshot format %q", name)
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }
func (jsonCodec) Ext() string  { return ".json" }

func (jsonCodec) Marshal(snap *mindmap.Snapshot) ([]byte, error) {
	return json.MarshalIndent(snap, "", "  ")
}

func (jsonCodec) Unmarshal(data []byte) (*mindmap.Snapshot, error) {
	var snap mindmap.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", mindmap.ErrMalformedSnapshot, err)
	}
	return &snap, nil
}

type yamlCodec struct{}

func (yamlCodec) Name() string { return "yaml" }
func (yamlCodec) Ext() string  { return ".yaml" }

func (yamlCodec) Marshal(snap *mindmap.Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(snap); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (yamlCodec) Unmarshal(data []byte) (*mindmap.Snapshot, error) {
	var snap mindmap.Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", mindmap.ErrMalformedSnapshot, err)
	}
	return &snap, nil
}
