package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// defaultPrinter is used to format schema validation error messages.
var defaultPrinter = message.NewPrinter(language.English)

// reportSchema is the compiled JSON Schema for persisted session reports.
var reportSchema *jsonschema.Schema

func init() {
	reportSchema = mustCompileSchema(reportSchemaJSON, "report.schema.json")
}

func mustCompileSchema(raw string, name string) *jsonschema.Schema {
	var schemaDoc any
	if err := json.Unmarshal([]byte(raw), &schemaDoc); err != nil {
		panic(fmt.Sprintf("failed to parse embedded %s: %v", name, err))
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, schemaDoc); err != nil {
		panic(fmt.Sprintf("failed to add %s resource: %v", name, err))
	}

	sch, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("failed to compile %s: %v", name, err))
	}
	return sch
}

// ValidateReportBytes validates raw JSON bytes against the report schema.
// A nil return means the document is well formed.
func ValidateReportBytes(data []byte) []string {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return []string{fmt.Sprintf("JSON parse error: %v", err)}
	}

	err := reportSchema.Validate(doc)
	if err == nil {
		return nil
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{fmt.Sprintf("schema: %v", err)}
	}
	var errs []string
	collectSchemaErrors(ve, &errs)
	return errs
}

func collectSchemaErrors(ve *jsonschema.ValidationError, errs *[]string) {
	if len(ve.Causes) == 0 {
		loc := "/"
		if len(ve.InstanceLocation) > 0 {
			loc = "/" + strings.Join(ve.InstanceLocation, "/")
		}
		*errs = append(*errs, fmt.Sprintf("%s: %s", loc, ve.ErrorKind.LocalizedString(defaultPrinter)))
		return
	}
	for _, c := range ve.Causes {
		collectSchemaErrors(c, errs)
	}
}

const reportSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "title": "Session report",
  "type": "object",
  "required": ["session_id", "generated_at", "score", "verdict", "violation_counts", "timeline", "meta"],
  "properties": {
    "session_id": {"type": "string", "minLength": 1},
    "generated_at": {"type": "string"},
    "score": {"type": "number", "minimum": 0, "maximum": 100},
    "verdict": {"enum": ["CLEAN", "SUSPICIOUS", "CHEATING"]},
    "violation_counts": {
      "type": "object",
      "additionalProperties": {"type": "integer", "minimum": 0}
    },
    "timeline": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "timestamp", "kind", "severity", "frame_index"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "timestamp": {"type": "number", "minimum": 0},
          "kind": {
            "enum": ["NO_FACE", "LOOKING_AWAY", "MULTI_FACE", "OBJECT_DETECTED", "TALKING", "SPEAKER_MISMATCH"]
          },
          "severity": {"type": "number", "minimum": 0, "maximum": 1},
          "frame_index": {"type": "integer", "minimum": -1},
          "evidence": {"type": "string"},
          "details": {"type": "object"}
        }
      }
    },
    "meta": {
      "type": "object",
      "required": ["frames_analyzed", "audio_windows", "fps", "duration_seconds", "degraded"],
      "properties": {
        "frames_analyzed": {"type": "integer", "minimum": 0},
        "audio_windows": {"type": "integer", "minimum": 0},
        "fps": {"type": "number", "minimum": 0},
        "duration_seconds": {"type": "number", "minimum": 0},
        "degraded": {"type": "boolean"},
        "degraded_reason": {"type": "string"}
      }
    }
  }
}`
