// Package datafile decodes render data from JSON, YAML, HCL and CBOR files
// into template root tables.
package datafile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/benjaminschreck/go-exprtmpl/pkg/exprtmpl"
	"github.com/fxamacker/cbor/v2"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v3"
)

// Format identifies a data file encoding.
type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
	HCL  Format = "hcl"
	CBOR Format = "cbor"
)

// ErrUnknownFormat is returned for file extensions with no decoder.
var ErrUnknownFormat = errors.New("unknown data file format")

var extensions = map[string]Format{
	".json": JSON,
	".yaml": YAML,
	".yml":  YAML,
	".hcl":  HCL,
	".cbor": CBOR,
}

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if f, ok := extensions[ext]; ok {
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, ext)
}

// Formats lists the supported formats in a stable order.
func Formats() []Format {
	seen := make(map[Format]bool)
	var out []Format
	for _, f := range extensions {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Load reads path and decodes it by extension. An empty path yields an
// empty table.
func Load(ctx context.Context, path string) (exprtmpl.Table, error) {
	if path == "" {
		return exprtmpl.NewMapTable(0), nil
	}
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read data file %s: %w", path, err)
	}
	exprtmpl.LoggerFromContext(ctx, nil).WithField("file", path).Debug("decoding %s data (%d bytes)", format, len(src))
	return Decode(format, path, src)
}

// Decode converts src into a root table. The top level of the document
// must be a mapping.
func Decode(format Format, name string, src []byte) (exprtmpl.Table, error) {
	var (
		v   exprtmpl.Value
		err error
	)
	switch format {
	case JSON:
		v, err = decodeJSON(src)
	case YAML:
		v, err = decodeYAML(src)
	case HCL:
		v, err = decodeHCL(name, src)
	case CBOR:
		v, err = decodeCBOR(src)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s data file %s: %w", format, name, err)
	}
	root, err := v.AsTable()
	if err != nil {
		return nil, fmt.Errorf("data file %s: top level must be a mapping: %w", name, err)
	}
	return root, nil
}

func decodeJSON(src []byte) (exprtmpl.Value, error) {
	if len(bytes.TrimSpace(src)) == 0 {
		return exprtmpl.TableValue(exprtmpl.NewMapTable(0)), nil
	}
	var data any
	if err := json.Unmarshal(src, &data); err != nil {
		return exprtmpl.Null, err
	}
	return exprtmpl.FromGo(data)
}

func decodeYAML(src []byte) (exprtmpl.Value, error) {
	var data any
	if err := yaml.Unmarshal(src, &data); err != nil {
		return exprtmpl.Null, err
	}
	if data == nil {
		return exprtmpl.TableValue(exprtmpl.NewMapTable(0)), nil
	}
	return exprtmpl.FromGo(stringKeys(data))
}

// stringKeys rewrites mappings with non-string keys, which YAML allows,
// into string-keyed maps.
func stringKeys(x any) any {
	switch v := x.(type) {
	case map[string]any:
		for k, e := range v {
			v[k] = stringKeys(e)
		}
		return v
	case map[any]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[fmt.Sprint(k)] = stringKeys(e)
		}
		return out
	case []any:
		for i, e := range v {
			v[i] = stringKeys(e)
		}
		return v
	}
	return x
}

// decodeHCL evaluates the top-level attributes of an HCL body without a
// variable context, so only literal expressions and builtin-free
// constructs are allowed.
func decodeHCL(name string, src []byte) (exprtmpl.Value, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, name)
	if diags.HasErrors() {
		return exprtmpl.Null, diags
	}
	attrs, diags := file.Body.JustAttributes()
	if diags.HasErrors() {
		return exprtmpl.Null, diags
	}
	obj := make(map[string]cty.Value, len(attrs))
	for attrName, attr := range attrs {
		val, valDiags := attr.Expr.Value(&hcl.EvalContext{})
		diags = append(diags, valDiags...)
		obj[attrName] = val
	}
	if diags.HasErrors() {
		return exprtmpl.Null, diags
	}
	return exprtmpl.FromCty(cty.ObjectVal(obj))
}

var cborDecMode = func() cbor.DecMode {
	mode, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder: %v", err))
	}
	return mode
}()

func decodeCBOR(src []byte) (exprtmpl.Value, error) {
	if len(src) == 0 {
		return exprtmpl.TableValue(exprtmpl.NewMapTable(0)), nil
	}
	var data any
	if err := cborDecMode.Unmarshal(src, &data); err != nil {
		return exprtmpl.Null, err
	}
	return exprtmpl.FromGo(data)
}
