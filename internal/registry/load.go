package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"
)

// Error codes for definition loading.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeReadFailed  = "E002" // File read error
	ErrCodeParseFailed = "E003" // YAML or CUE syntax error
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE evaluation failed
	ErrCodeUnsupported = "E008" // Unsupported file extension
	ErrCodeNoDefs      = "E009" // File has no relationships
	ErrCodeInvalidDef  = "E101" // Definition failed validation
)

// LoadError reports a failure loading a definitions file.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
	Err     error
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// definitionsFile is the YAML document layout:
//
//	relationships:
//	  - id: posts_to_pages
//	    from: post
//	    to: page
type definitionsFile struct {
	Relationships []Definition `yaml:"relationships"`
}

// ReadFile parses a .yaml, .yml or .cue definitions file.
//
// CUE files declare relationships as a struct keyed by id; an explicit id
// field inside the struct is optional:
//
//	relationships: posts_to_pages: {from: "post", to: "page"}
func ReadFile(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("definitions file not found: %s", path), Err: err}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeReadFailed, Message: fmt.Sprintf("read %s: %v", path, err), Err: err}
	}

	var defs []Definition
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		defs, err = parseYAML(data)
	case ".cue":
		defs, err = parseCUE(path, data)
	default:
		return nil, &LoadError{Code: ErrCodeUnsupported, Message: fmt.Sprintf("unsupported definitions file %q: want .yaml, .yml or .cue", path)}
	}
	if err != nil {
		return nil, err
	}
	if len(defs) == 0 {
		return nil, &LoadError{Code: ErrCodeNoDefs, Message: fmt.Sprintf("no relationships found in %s", path)}
	}
	return defs, nil
}

func parseYAML(data []byte) ([]Definition, error) {
	var file definitionsFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, &LoadError{Code: ErrCodeParseFailed, Message: fmt.Sprintf("parse YAML: %v", err), Err: err}
	}
	return file.Relationships, nil
}

func parseCUE(path string, data []byte) ([]Definition, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return nil, cueLoadError(ErrCodeParseFailed, "compile CUE", err)
	}

	relsVal := value.LookupPath(cue.ParsePath("relationships"))
	if !relsVal.Exists() {
		return nil, nil
	}

	iter, err := relsVal.Fields()
	if err != nil {
		return nil, cueLoadError(ErrCodeBuildFailed, "iterate relationships", err)
	}

	var defs []Definition
	for iter.Next() {
		raw, err := iter.Value().MarshalJSON()
		if err != nil {
			return nil, cueLoadError(ErrCodeBuildFailed, "relationships."+iter.Label(), err)
		}
		var def Definition
		if err := json.Unmarshal(raw, &def); err != nil {
			return nil, &LoadError{
				Code:    ErrCodeParseFailed,
				Message: fmt.Sprintf("relationships.%s: %v", iter.Label(), err),
				Pos:     iter.Value().Pos(),
				Err:     err,
			}
		}
		if def.ID == "" {
			def.ID = iter.Label()
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func cueLoadError(code, context string, err error) *LoadError {
	loadErr := &LoadError{Code: code, Message: fmt.Sprintf("%s: %v", context, err), Err: err}
	if positions := cueerrors.Positions(err); len(positions) > 0 {
		loadErr.Pos = positions[0]
	}
	return loadErr
}

// LoadFile reads path and registers every definition in it. It stops at
// the first invalid definition and returns the number registered so far.
func (r *Registry) LoadFile(path string) (int, error) {
	defs, err := ReadFile(path)
	if err != nil {
		return 0, err
	}

	for i, def := range defs {
		if _, err := r.Register(def); err != nil {
			var defErr *DefinitionError
			if errors.As(err, &defErr) {
				return i, &LoadError{Code: ErrCodeInvalidDef, Message: fmt.Sprintf("%s: %v", path, defErr), Err: err}
			}
			return i, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("%s: %v", path, err), Err: err}
		}
	}

	r.logger.Info("relationships loaded", "path", path, "count", len(defs))
	return len(defs), nil
}
