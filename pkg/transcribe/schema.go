package transcribe

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// responseSchemaJSON accepts both the success and the error body. A success
// body may omit the spectrogram (older services only return the text).
const responseSchemaJSON = `{
	"type": "object",
	"properties": {
		"transcription": {"type": ["string", "null"]},
		"mel_spectrogram": {"type": ["string", "null"]},
		"error": {"type": ["string", "null"]}
	}
}`

var responseSchema = mustSchema(responseSchemaJSON)

func mustSchema(src string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("transcribe: bad response schema: %v", err))
	}
	return schema
}

// validateBody checks body against the response schema. A nil error means
// the body can be decoded into response.
func validateBody(body []byte) error {
	result, err := responseSchema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if !result.Valid() {
		msgs := make([]string, len(result.Errors()))
		for i, e := range result.Errors() {
			msgs[i] = e.String()
		}
		return fmt.Errorf("%w: %s", ErrInvalidResponse, strings.Join(msgs, "; "))
	}
	return nil
}

func statusMessage(code int) string {
	if text := http.StatusText(code); text != "" {
		return fmt.Sprintf("transcription service returned %d %s", code, text)
	}
	return fmt.Sprintf("transcription service returned %d", code)
}
