package ipc

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// requestSchemas maps request types to the schema their payload must match.
// Types not listed carry no payload.
var requestSchemas = map[MessageType]string{
	MsgHandshake: "handshake.json",
	MsgRun:       "run.json",
	MsgValidate:  "validate.json",
	MsgOpen:      "open.json",
}

const schemaBase = "https://autotyped.invalid/schemas/"

var (
	schemasOnce sync.Once
	schemas     map[MessageType]*jsonschema.Schema
	schemasErr  error
)

func compileSchemas() (map[MessageType]*jsonschema.Schema, error) {
	schemasOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		for _, name := range requestSchemas {
			data, err := schemaFS.ReadFile("schemas/" + name)
			if err != nil {
				schemasErr = err
				return
			}
			if err := c.AddResource(schemaBase+name, bytes.NewReader(data)); err != nil {
				schemasErr = fmt.Errorf("add schema %s: %w", name, err)
				return
			}
		}
		out := make(map[MessageType]*jsonschema.Schema, len(requestSchemas))
		for t, name := range requestSchemas {
			s, err := c.Compile(schemaBase + name)
			if err != nil {
				schemasErr = fmt.Errorf("compile schema %s: %w", name, err)
				return
			}
			out[t] = s
		}
		schemas = out
	})
	return schemas, schemasErr
}

// ValidatePayload checks a request body against the schema for its type.
func ValidatePayload(t MessageType, payload []byte) error {
	all, err := compileSchemas()
	if err != nil {
		return err
	}
	s, ok := all[t]
	if !ok {
		return nil
	}
	if len(payload) == 0 {
		return fmt.Errorf("%s: empty payload", t)
	}
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return fmt.Errorf("%s: %w", t, err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("%s: %w", t, err)
	}
	return nil
}
