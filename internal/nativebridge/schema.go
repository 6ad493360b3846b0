package nativebridge

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Payload schemas for the two push channels. Frames that fail validation are
// dropped before they can reach the ingestion engine.

const linkCapturedSchemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["url"],
	"properties": {
		"url": {"type": "string", "minLength": 1},
		"path": {"type": "string"},
		"parameters": {
			"type": "object",
			"additionalProperties": {"type": "string"}
		}
	},
	"additionalProperties": false
}`

const attributionEnrichedSchemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"url": {"type": "string"},
		"path": {"type": "string"},
		"parameters": {
			"type": "object",
			"additionalProperties": {"type": "string"}
		},
		"smartLinkId": {"type": "string"},
		"clickId": {"type": "string"}
	},
	"additionalProperties": false
}`

var (
	linkCapturedSchema        = mustCompileSchema("link_captured.json", linkCapturedSchemaJSON)
	attributionEnrichedSchema = mustCompileSchema("attribution_enriched.json", attributionEnrichedSchemaJSON)
)

func mustCompileSchema(name, src string) *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
	if err != nil {
		panic(fmt.Sprintf("unmarshal schema %s: %v", name, err))
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, doc); err != nil {
		panic(fmt.Sprintf("add schema resource %s: %v", name, err))
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("compile schema %s: %v", name, err))
	}
	return schema
}

func validatePayload(schema *jsonschema.Schema, payload []byte) error {
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return err
	}
	return schema.Validate(instance)
}
