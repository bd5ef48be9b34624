package orchestrator

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// manifestSchemaJSON describes the required shape of a manifest's JSON
// serialization (spec §3). Validated with gojsonschema before any
// signature or hash work proceeds, so a structurally malformed manifest
// is rejected early and uniformly as InvalidSchema.
const manifestSchemaJSON = `{
  "type": "object",
  "required": ["vcp_version", "bundle", "issuer", "timestamps", "budget", "safety_attestation", "signature"],
  "properties": {
    "vcp_version": {"type": "string"},
    "bundle": {
      "type": "object",
      "required": ["id", "version", "content_hash"],
      "properties": {
        "id": {"type": "string"},
        "version": {"type": "string"},
        "content_hash": {"type": "string"}
      }
    },
    "issuer": {
      "type": "object",
      "required": ["id", "public_key", "key_id"],
      "properties": {
        "id": {"type": "string"},
        "public_key": {"type": "string"},
        "key_id": {"type": "string"}
      }
    },
    "timestamps": {
      "type": "object",
      "required": ["iat", "nbf", "exp", "jti"],
      "properties": {
        "iat": {"type": "string"},
        "nbf": {"type": "string"},
        "exp": {"type": "string"},
        "jti": {"type": "string"}
      }
    },
    "budget": {
      "type": "object",
      "required": ["token_count", "max_context_share"],
      "properties": {
        "token_count": {"type": "integer", "minimum": 0},
        "max_context_share": {"type": "number", "exclusiveMinimum": 0, "maximum": 1}
      }
    },
    "safety_attestation": {
      "type": "object",
      "required": ["auditor", "auditor_key_id", "attestation_type", "signature"],
      "properties": {
        "auditor": {"type": "string"},
        "auditor_key_id": {"type": "string"},
        "attestation_type": {"type": "string", "enum": ["injection-safe", "content-safe", "full-audit"]},
        "signature": {"type": "string"}
      }
    },
    "signature": {
      "type": "object",
      "required": ["algorithm", "value"],
      "properties": {
        "algorithm": {"type": "string"},
        "value": {"type": "string"}
      }
    }
  }
}`

var manifestSchema *gojsonschema.Schema

func init() {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(manifestSchemaJSON))
	if err != nil {
		panic(fmt.Sprintf("orchestrator: invalid embedded manifest schema: %v", err))
	}
	manifestSchema = schema
}

// validateManifestSchema reports whether manifestJSON conforms to the
// structural schema. A non-nil error carries the first validation
// failure's description.
func validateManifestSchema(manifestJSON []byte) error {
	result, err := manifestSchema.Validate(gojsonschema.NewBytesLoader(manifestJSON))
	if err != nil {
		return fmt.Errorf("orchestrator: schema validation error: %w", err)
	}
	if !result.Valid() {
		if len(result.Errors()) > 0 {
			return fmt.Errorf("orchestrator: schema violation: %s", result.Errors()[0])
		}
		return fmt.Errorf("orchestrator: manifest does not conform to schema")
	}
	return nil
}
