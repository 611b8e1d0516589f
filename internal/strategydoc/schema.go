/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package strategydoc

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"

	gojson "github.com/goccy/go-json"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

//go:embed schema/strategy.schema.json
var schemaJSON []byte

const schemaName = "strategy.schema.json"

var (
	printer        = message.NewPrinter(language.English)
	strategySchema = mustCompileSchema(schemaJSON)
)

// SchemaError lists every schema violation in a document.
type SchemaError struct {
	Problems []string
}

func (e *SchemaError) Error() string {
	return "strategy document does not match schema: " + strings.Join(e.Problems, "; ")
}

func (e *SchemaError) Unwrap() error { return ErrMalformed }

// Schema returns the embedded JSON Schema source.
func Schema() []byte { return bytes.Clone(schemaJSON) }

func mustCompileSchema(raw []byte) *jsonschema.Schema {
	var doc any
	if err := gojson.Unmarshal(raw, &doc); err != nil {
		panic(fmt.Sprintf("parse embedded %s: %v", schemaName, err))
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaName, doc); err != nil {
		panic(fmt.Sprintf("add %s resource: %v", schemaName, err))
	}
	sch, err := compiler.Compile(schemaName)
	if err != nil {
		panic(fmt.Sprintf("compile %s: %v", schemaName, err))
	}
	return sch
}

// ValidateJSON checks a current-version JSON document against the schema.
func ValidateJSON(data []byte) error {
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	err = strategySchema.Validate(instance)
	if err == nil {
		return nil
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return &SchemaError{Problems: []string{err.Error()}}
	}
	var problems []string
	collect(ve, &problems)
	return &SchemaError{Problems: problems}
}

func collect(ve *jsonschema.ValidationError, out *[]string) {
	if len(ve.Causes) == 0 {
		loc := "/" + strings.Join(ve.InstanceLocation, "/")
		*out = append(*out, fmt.Sprintf("%s: %s", loc, ve.ErrorKind.LocalizedString(printer)))
		return
	}
	for _, c := range ve.Causes {
		collect(c, out)
	}
}
