// Package server contains the payload types shared by the HTTP adapters.
package server

import (
	"encoding/json"
	"fmt"
	"go/types"
	"log"
	"net/http"
	"strings"
)

// BoolT is a struct with a single Bool field
type BoolT struct {
	Bool bool `json:"bool"`
}

// FloatT is a struct with a single F64 field
type FloatT struct {
	F64 float64 `json:"f64"`
}

// StrT is a struct with a single Str field
type StrT struct {
	Str string `json:"str"`
}

// IntT is a struct with a single Int field
type IntT struct {
	Int int `json:"int"`
}

// Uint32T is a struct with a single Uint field
type Uint32T struct {
	Uint uint32 `json:"uint"`
}

// HumanPayload is a struct containing the basic types a device may work
// with.  T selects which field is populated.
type HumanPayload struct {
	T types.BasicKind

	Bool   bool
	Float  float64
	Int    int
	String string
	Uint32 uint32
}

// value returns the populated field wrapped in its single field struct
func (hp HumanPayload) value() (interface{}, error) {
	switch hp.T {
	case types.Bool:
		return BoolT{hp.Bool}, nil
	case types.Float64:
		return FloatT{hp.Float}, nil
	case types.Int:
		return IntT{hp.Int}, nil
	case types.String:
		return StrT{hp.String}, nil
	case types.Uint32:
		return Uint32T{hp.Uint32}, nil
	}
	return nil, fmt.Errorf("server: HumanPayload type %d not understood", hp.T)
}

// EncodeAndRespond writes the payload to w as JSON, or as plain text when
// the client asks for text/plain
func (hp HumanPayload) EncodeAndRespond(w http.ResponseWriter, r *http.Request) {
	v, err := hp.value()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if strings.Contains(r.Header.Get("Accept"), "text/plain") {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		switch t := v.(type) {
		case BoolT:
			fmt.Fprint(w, t.Bool)
		case FloatT:
			fmt.Fprint(w, t.F64)
		case IntT:
			fmt.Fprint(w, t.Int)
		case StrT:
			fmt.Fprint(w, t.Str)
		case Uint32T:
			fmt.Fprint(w, t.Uint)
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err = json.NewEncoder(w).Encode(v); err != nil {
		// the header is gone, all we can do is log
		log.Printf("error encoding %T to json %q\n", v, err)
	}
}

// RespondJSON encodes v as JSON with a 200 status
func RespondJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("error encoding %T to json %q\n", v, err)
	}
}
