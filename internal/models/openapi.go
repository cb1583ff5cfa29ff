package models

import (
	"reflect"

	"github.com/danielgtaylor/huma/v2"
)

// Candidates and sellers carry their stage as an interface, so the OpenAPI
// schema is taken from the flattened wire shape instead of the Go struct.

// Schema describes a candidate as it is written by MarshalJSON.
func (Candidate) Schema(r huma.Registry) *huma.Schema {
	return r.Schema(reflect.TypeOf(candidateJSON{}), true, "Candidate")
}

// Schema describes a seller as it is written by MarshalJSON.
func (Seller) Schema(r huma.Registry) *huma.Schema {
	return r.Schema(reflect.TypeOf(sellerJSON{}), true, "Seller")
}
