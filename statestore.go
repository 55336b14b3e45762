package stepflow

import (
	"encoding/json"
	"sort"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

// Values is the serialisable form of a State or Payload. Each value is stored in its JSON encoding so that
// stores can persist it without knowing the concrete types written by steps.
type Values map[string]json.RawMessage

func (v Values) lookup(key string) (json.RawMessage, bool) {
	raw, ok := v[key]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return nil, false
	}

	return raw, true
}

func (v Values) decode(key string, dst any) (bool, error) {
	raw, ok := v.lookup(key)
	if !ok {
		return false, nil
	}

	err := json.Unmarshal(raw, dst)
	if err != nil {
		return false, errors.Wrap(err, "decode state value", j.KV("key", key))
	}

	return true, nil
}

func (v Values) keys() []string {
	ks := make([]string, 0, len(v))
	for k := range v {
		ks = append(ks, k)
	}

	sort.Strings(ks)
	return ks
}

// State is the key value store scoped to a single execution. Values written with SetKey are persisted by the
// engine after every invocation, including failed ones, and remain readable by later steps, predicates and the
// compensator for the lifetime of the execution.
type State struct {
	values Values
}

func newState(v Values) *State {
	return &State{values: v}
}

// SetKey stores the JSON encoding of value under key, replacing any existing value.
func (s *State) SetKey(key string, value any) error {
	b, err := Marshal(&value)
	if err != nil {
		return errors.Wrap(err, "encode state value", j.KV("key", key))
	}

	s.values[key] = b
	return nil
}

// String is a required read. A missing key returns ErrKeyNotFound which fails the step.
func (s *State) String(key string) (string, error) {
	return requiredString(s.values, key)
}

// OptionalString returns false when the key has not been written.
func (s *State) OptionalString(key string) (string, bool, error) {
	return optionalString(s.values, key)
}

// Object is a required read that decodes the value into dst.
func (s *State) Object(key string, dst any) error {
	return requiredObject(s.values, key, dst)
}

// OptionalObject decodes the value into dst and returns false when the key has not been written.
func (s *State) OptionalObject(key string, dst any) (bool, error) {
	return s.values.decode(key, dst)
}

func (s *State) Has(key string) bool {
	_, ok := s.values.lookup(key)
	return ok
}

// Keys returns the written keys in lexical order.
func (s *State) Keys() []string {
	return s.values.keys()
}

// Payload is the read only, execution scoped input provided when the execution was started.
type Payload struct {
	values Values
}

func (p Payload) String(key string) (string, error) {
	return requiredString(p.values, key)
}

func (p Payload) OptionalString(key string) (string, bool, error) {
	return optionalString(p.values, key)
}

func (p Payload) Object(key string, dst any) error {
	return requiredObject(p.values, key, dst)
}

func (p Payload) OptionalObject(key string, dst any) (bool, error) {
	return p.values.decode(key, dst)
}

func requiredString(v Values, key string) (string, error) {
	s, ok, err := optionalString(v, key)
	if err != nil {
		return "", err
	}

	if !ok {
		return "", errors.Wrap(ErrKeyNotFound, "", j.KV("key", key))
	}

	return s, nil
}

func optionalString(v Values, key string) (string, bool, error) {
	var s string
	ok, err := v.decode(key, &s)
	if err != nil {
		return "", false, err
	}

	return s, ok, nil
}

func requiredObject(v Values, key string, dst any) error {
	ok, err := v.decode(key, dst)
	if err != nil {
		return err
	}

	if !ok {
		return errors.Wrap(ErrKeyNotFound, "", j.KV("key", key))
	}

	return nil
}

// EncodeValues converts a plain map into Values. It is used to build execution payloads.
func EncodeValues(m map[string]any) (Values, error) {
	v := make(Values, len(m))
	for k, val := range m {
		b, err := Marshal(&val)
		if err != nil {
			return nil, errors.Wrap(err, "encode value", j.KV("key", k))
		}

		v[k] = b
	}

	return v, nil
}
