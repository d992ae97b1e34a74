package mux

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"io"

	"github.com/vitalvas/harbor/reqbody"
)

// BindJSON decodes the request body as JSON into v.
// By default the decoder rejects unknown fields that do not map to exported
// struct fields. Pass true to allow unknown fields.
// Exactly one JSON value must be present in the body; trailing data is an error.
// Failures are *reqbody.DecodeError values wrapping reqbody.ErrMalformedBody.
func BindJSON(req *Request, v any, allowUnknownFields ...bool) error {
	dec := json.NewDecoder(bytes.NewReader(req.Body))

	if len(allowUnknownFields) == 0 || !allowUnknownFields[0] {
		dec.DisallowUnknownFields()
	}

	if err := dec.Decode(v); err != nil {
		return &reqbody.DecodeError{Format: "json", Err: err}
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return &reqbody.DecodeError{Format: "json", Err: errors.New("unexpected trailing data after JSON value")}
	}

	return nil
}

// BindXML decodes the request body as XML into v.
// Exactly one XML element must be present in the body; trailing data is an error.
func BindXML(req *Request, v any) error {
	dec := xml.NewDecoder(bytes.NewReader(req.Body))

	if err := dec.Decode(v); err != nil {
		return &reqbody.DecodeError{Format: "xml", Err: err}
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return &reqbody.DecodeError{Format: "xml", Err: errors.New("unexpected trailing data after XML value")}
	}

	return nil
}
