package stagepipe

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// Format is a persisted document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the format from a file extension. Anything that is not
// .yaml or .yml is treated as JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

var (
	schemaOnce     sync.Once
	schemaDocument []byte
	compiledSchema *gojsonschema.Schema
	schemaErr      error
)

func pipelineSchema() ([]byte, *gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		reflector := jsonschema.Reflector{
			RequiredFromJSONSchemaTags: true,
			DoNotReference:             true,
			AllowAdditionalProperties:  true,
		}
		schema := reflector.Reflect(SerializedPipeline{})
		schema.Version = "http://json-schema.org/draft-07/schema#"
		schema.Title = "stagepipe pipeline"
		// Older documents and hand-written ones may carry a null parameter list.
		if schema.Items != nil && schema.Items.Properties != nil {
			if params, ok := schema.Items.Properties.Get("param_list"); ok {
				schema.Items.Properties.Set("param_list", &jsonschema.Schema{
					OneOf: []*jsonschema.Schema{params, {Type: "null"}},
				})
			}
		}

		schemaDocument, schemaErr = json.MarshalIndent(schema, "", "  ")
		if schemaErr != nil {
			return
		}
		compiledSchema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaDocument))
	})
	return schemaDocument, compiledSchema, schemaErr
}

// PipelineSchema returns the JSON Schema that persisted pipelines are
// validated against.
func PipelineSchema() ([]byte, error) {
	doc, _, err := pipelineSchema()
	if err != nil {
		return nil, fmt.Errorf("building pipeline schema: %w", err)
	}
	return bytes.Clone(doc), nil
}

// ValidateDocument checks a JSON document against the pipeline schema. The
// returned error wraps ErrInvalidDocument and lists every violation.
func ValidateDocument(data []byte) error {
	_, schema, err := pipelineSchema()
	if err != nil {
		return fmt.Errorf("building pipeline schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if result.Valid() {
		return nil
	}
	errs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		errs = append(errs, e.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalidDocument, strings.Join(errs, "; "))
}

// MarshalPipeline encodes sp as an indented JSON document.
func MarshalPipeline(sp SerializedPipeline) ([]byte, error) {
	sp = sp.withParamLists()
	return json.MarshalIndent(sp, "", "  ")
}

// UnmarshalPipeline validates and decodes a JSON document. Fields the schema
// does not know are ignored.
func UnmarshalPipeline(data []byte) (SerializedPipeline, error) {
	if err := ValidateDocument(data); err != nil {
		return nil, err
	}
	var sp SerializedPipeline
	if err := json.Unmarshal(data, &sp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return sp, nil
}

// MarshalPipelineYAML encodes sp as YAML.
func MarshalPipelineYAML(sp SerializedPipeline) ([]byte, error) {
	sp = sp.withParamLists()
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(sp); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalPipelineYAML validates and decodes a YAML document. The document is
// checked against the same schema as JSON documents.
func UnmarshalPipelineYAML(data []byte) (SerializedPipeline, error) {
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	asJSON, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := ValidateDocument(asJSON); err != nil {
		return nil, err
	}
	var sp SerializedPipeline
	if err := yaml.Unmarshal(data, &sp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return sp, nil
}

// EncodePipeline encodes sp in the given format.
func EncodePipeline(f Format, sp SerializedPipeline) ([]byte, error) {
	switch f {
	case FormatYAML:
		return MarshalPipelineYAML(sp)
	case FormatJSON, "":
		return MarshalPipeline(sp)
	default:
		return nil, fmt.Errorf("unknown pipeline format %q", f)
	}
}

// DecodePipeline decodes a document in the given format.
func DecodePipeline(f Format, data []byte) (SerializedPipeline, error) {
	switch f {
	case FormatYAML:
		return UnmarshalPipelineYAML(data)
	case FormatJSON, "":
		return UnmarshalPipeline(data)
	default:
		return nil, fmt.Errorf("unknown pipeline format %q", f)
	}
}
