package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var (
	joinSchema   = mustCompile("schemas/join.schema.json")
	actionSchema = mustCompile("schemas/action.schema.json")
	tickSchema   = mustCompile("schemas/tick.schema.json")
)

func mustCompile(name string) *jsonschema.Schema {
	data, err := schemaFS.ReadFile(name)
	if err != nil {
		panic(fmt.Sprintf("schema %s: %v", name, err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, bytes.NewReader(data)); err != nil {
		panic(fmt.Sprintf("schema %s: %v", name, err))
	}
	return c.MustCompile(name)
}

// DecodeJoin validates and decodes a join request body.
func DecodeJoin(data []byte) (JoinRequest, *Error) {
	var req JoinRequest
	if err := validate(joinSchema, data); err != nil {
		return req, err
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, ErrInvalidArgument("join request parse error")
	}
	return req, nil
}

// DecodeAction validates and decodes a player action body.
func DecodeAction(data []byte) (ActionRequest, *Error) {
	var req ActionRequest
	if err := validate(actionSchema, data); err != nil {
		return req, err
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, ErrInvalidArgument("action request parse error")
	}
	return req, nil
}

// DecodeTick validates and decodes a manual tick body.
func DecodeTick(data []byte) (TickRequest, *Error) {
	var req TickRequest
	if err := validate(tickSchema, data); err != nil {
		return req, err
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, ErrInvalidArgument("tick request parse error")
	}
	return req, nil
}

func validate(s *jsonschema.Schema, data []byte) *Error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return ErrInvalidArgument("body is not valid JSON")
	}
	if err := s.Validate(v); err != nil {
		return ErrInvalidArgument("body failed validation")
	}
	return nil
}
