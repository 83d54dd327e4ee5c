package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	stderrors "errors" // Standard errors package

	"github.com/mcncl/jsonmeta/internal/errors" // Custom errors package
	"github.com/mcncl/jsonmeta/internal/models"
	"github.com/tidwall/gjson"
)

// Parse reads JSON data from an io.Reader into a models.Value
func Parse(reader io.Reader) (models.Value, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return models.Value{}, errors.NewInputError("failed to read JSON input", err)
	}
	return ParseBytes(data)
}

// ParseBytes converts JSON text into a models.Value. Object keys keep the
// order they have in the text.
func ParseBytes(data []byte) (models.Value, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return models.Value{}, errors.NewParsingError("input is empty or contains only whitespace", errors.ErrEmptyInput)
	}
	if !gjson.ValidBytes(data) {
		return models.Value{}, diagnose(data)
	}
	return fromResult(gjson.ParseBytes(data)), nil
}

// ParseString parses JSON from a string
func ParseString(jsonString string) (models.Value, error) {
	// Whitespace-only strings are reported as empty input rather than a syntax error.
	if strings.TrimSpace(jsonString) == "" {
		return models.Value{}, errors.NewInputError("input string is empty", errors.ErrEmptyInput)
	}
	return ParseBytes([]byte(jsonString))
}

// ParseFile parses JSON from a file path
func ParseFile(filePath string) (models.Value, error) {
	if strings.TrimSpace(filePath) == "" {
		return models.Value{}, errors.NewInputError("file path is empty", errors.ErrInvalidFilePath)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		// Check if the file doesn't exist
		if os.IsNotExist(err) {
			return models.Value{}, errors.NewInputError(
				fmt.Sprintf("file '%s' not found", filePath),
				errors.ErrFileNotFound,
			)
		}
		return models.Value{}, errors.NewInputError(
			fmt.Sprintf("failed to open file '%s'", filePath),
			err,
		)
	}
	if len(data) == 0 {
		return models.Value{}, errors.NewInputError(
			fmt.Sprintf("input file '%s' is empty", filePath),
			errors.ErrFileEmpty,
		)
	}
	return ParseBytes(data)
}

// diagnose explains why gjson rejected the text, using the standard decoder
// for offsets and to tell a syntax error from several concatenated values.
func diagnose(data []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	var first interface{}
	if err := decoder.Decode(&first); err != nil {
		var syntaxError *json.SyntaxError
		if stderrors.As(err, &syntaxError) {
			return errors.NewParsingError(
				fmt.Sprintf("JSON syntax error at offset %d", syntaxError.Offset),
				errors.ErrInvalidJSON,
			)
		}
		return errors.NewParsingError("failed to decode JSON", errors.ErrInvalidJSON)
	}
	if decoder.More() {
		var trailing interface{}
		if err := decoder.Decode(&trailing); err == nil {
			return errors.NewParsingError("multiple JSON values found at the root", errors.ErrMultipleJSON)
		}
		return errors.NewParsingError("invalid trailing data after first JSON value", errors.ErrInvalidJSON)
	}
	return errors.NewParsingError("invalid JSON text", errors.ErrInvalidJSON)
}

// fromResult converts a gjson result into our model types
func fromResult(r gjson.Result) models.Value {
	switch r.Type {
	case gjson.False:
		return models.BoolValue(false)
	case gjson.True:
		return models.BoolValue(true)
	case gjson.Number:
		return models.NumberValue(json.Number(strings.TrimSpace(r.Raw)))
	case gjson.String:
		return models.StringValue(r.Str)
	case gjson.JSON:
		if r.IsArray() {
			items := make([]models.Value, 0)
			r.ForEach(func(_, value gjson.Result) bool {
				items = append(items, fromResult(value))
				return true
			})
			return models.ArrayValue(items...)
		}
		obj := models.NewObject()
		r.ForEach(func(key, value gjson.Result) bool {
			obj.Set(key.Str, fromResult(value))
			return true
		})
		return models.ObjectValue(obj)
	default:
		return models.NullValue()
	}
}

// ExpandEmbedded returns the parsed value when v is a string holding a
// serialized JSON object or array; otherwise v is returned unchanged.
func ExpandEmbedded(v models.Value) models.Value {
	if v.Kind() != models.String {
		return v
	}
	text := strings.TrimSpace(v.Str())
	if text == "" || (text[0] != '{' && text[0] != '[') {
		return v
	}
	if !gjson.Valid(text) {
		return v
	}
	return fromResult(gjson.Parse(text))
}

// Encode writes v as indented JSON text. An empty indent produces compact output.
func Encode(v models.Value, indent string) (string, error) {
	data, err := v.MarshalJSON()
	if err != nil {
		return "", errors.NewOutputError("failed to encode JSON", err)
	}
	if indent == "" {
		return string(data), nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", indent); err != nil {
		return "", errors.NewOutputError("failed to indent JSON", err)
	}
	return buf.String(), nil
}
