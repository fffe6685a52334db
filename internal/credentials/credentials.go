// Package credentials loads the bearer tokens assigned to virtual clients.
package credentials

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Credential is one bearer token and the user it belongs to.
type Credential struct {
	Token  string `json:"token"`
	UserID int64  `json:"userId"`
}

// Placeholder is used when no usable token source is available.
var Placeholder = Credential{Token: "REPLACE_WITH_REAL_TOKEN", UserID: 1}

// ErrNoTokens is returned when a token source parses but holds no tokens.
var ErrNoTokens = errors.New("token file contains no tokens")

//go:embed schema.json
var schemaJSON string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("tokens.schema.json", bytes.NewReader([]byte(schemaJSON))); err != nil {
			schemaErr = fmt.Errorf("invalid schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("tokens.schema.json")
	})
	return schema, schemaErr
}

// Set is an ordered, immutable list of credentials. It is safe for concurrent use.
type Set struct {
	creds       []Credential
	placeholder bool
}

// NewSet returns a set over creds. An empty list yields the placeholder set.
func NewSet(creds []Credential) *Set {
	if len(creds) == 0 {
		return &Set{creds: []Credential{Placeholder}, placeholder: true}
	}
	return &Set{creds: append([]Credential(nil), creds...)}
}

// For returns the credential assigned to the client at index. Assignment is
// index mod Len, so it is stable across runs with the same source.
func (s *Set) For(index int) Credential {
	n := len(s.creds)
	i := index % n
	if i < 0 {
		i += n
	}
	return s.creds[i]
}

// Len returns the number of distinct credentials.
func (s *Set) Len() int {
	return len(s.creds)
}

// IsPlaceholder reports whether the set fell back to Placeholder.
func (s *Set) IsPlaceholder() bool {
	return s.placeholder
}

// Parse validates data against the token file schema and decodes it.
func Parse(data []byte) ([]Credential, error) {
	sch, err := compiledSchema()
	if err != nil {
		return nil, err
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode JSON: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return nil, fmt.Errorf("validate token file: %w", err)
	}

	var file struct {
		Tokens []Credential `json:"tokens"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode JSON: %w", err)
	}
	if len(file.Tokens) == 0 {
		return nil, ErrNoTokens
	}
	return file.Tokens, nil
}

// Load reads the token file at path. It never fails: a missing, unreadable,
// empty or invalid file logs a warning and yields the placeholder set.
func Load(path string, logger *slog.Logger) *Set {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		logger.Warn("no token file configured, using placeholder token")
		return NewSet(nil)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("failed to read token file, using placeholder token", "path", path, "error", err)
		return NewSet(nil)
	}
	creds, err := Parse(data)
	if err != nil {
		logger.Warn("failed to load tokens, using placeholder token", "path", path, "error", err)
		return NewSet(nil)
	}
	logger.Debug("loaded tokens", "path", path, "count", len(creds))
	return NewSet(creds)
}
