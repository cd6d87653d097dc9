package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"slices"
	"strings"
)

// Answer is the value recorded for one question: a scalar string or, for
// multi-choice questions, a list of strings.
type Answer struct {
	values []string
	multi  bool
}

// Scalar builds a single-value answer.
func Scalar(v string) Answer {
	return Answer{values: []string{v}}
}

// Multi builds a collection answer.
func Multi(vs ...string) Answer {
	return Answer{values: slices.Clone(vs), multi: true}
}

// IsMulti reports whether the answer is a collection.
func (a Answer) IsMulti() bool { return a.multi }

// Values returns a copy of the recorded values.
func (a Answer) Values() []string { return slices.Clone(a.values) }

// String returns the scalar value, or the values joined with ", " for collections.
func (a Answer) String() string {
	return strings.Join(a.values, ", ")
}

// IsEmpty reports whether the answer carries no non-blank value.
func (a Answer) IsEmpty() bool {
	for _, v := range a.values {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// MarshalJSON encodes scalars as JSON strings and collections as arrays.
func (a Answer) MarshalJSON() ([]byte, error) {
	if a.multi {
		if a.values == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(a.values)
	}
	if len(a.values) == 0 {
		return json.Marshal("")
	}
	return json.Marshal(a.values[0])
}

// UnmarshalJSON accepts a JSON string or an array of strings.
func (a *Answer) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return errors.New("answer must be a string or an array of strings")
	}
	if data[0] == '[' {
		var vs []string
		if err := json.Unmarshal(data, &vs); err != nil {
			return errors.New("answer array must contain only strings")
		}
		*a = Multi(vs...)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.New("answer must be a string or an array of strings")
	}
	*a = Scalar(s)
	return nil
}

// Answers maps question keys to recorded answers.
type Answers map[string]Answer

// Clone returns an independent copy of the map.
func (a Answers) Clone() Answers {
	out := make(Answers, len(a))
	for k, v := range a {
		out[k] = Answer{values: slices.Clone(v.values), multi: v.multi}
	}
	return out
}
