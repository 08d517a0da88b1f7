package source

import (
	"bytes"
	"log/slog"

	"github.com/goccy/go-yaml"

	"github.com/ardnew/muster/view"
)

// DecodeDictionary decodes YAML (or JSON, which is a subset of YAML) into
// a dictionary. Empty input decodes to an empty dictionary.
func DecodeDictionary(data []byte) (view.Map, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return view.Map{}, nil
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, ErrDecode.Wrap(err)
	}

	switch v := view.ValueOf(doc).(type) {
	case view.Map:
		return v, nil
	case view.Scalar:
		if v.Interface() == nil {
			return view.Map{}, nil
		}
	}

	return nil, ErrDecode.With(slog.String("reason", "document is not a mapping"))
}

// EncodeDictionary encodes a dictionary as block YAML, or as JSON when
// asJSON is set.
func EncodeDictionary(dict view.Map, asJSON bool) ([]byte, error) {
	opts := []yaml.EncodeOption{yaml.Indent(2)}
	if asJSON {
		opts = append(opts, yaml.JSON())
	}

	return yaml.MarshalWithOptions(view.Native(dict), opts...)
}
