package main

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// envelope is a relayed JSON object. Values stay raw so fields the relay
// does not own are forwarded without being reinterpreted.
type envelope map[string]json.RawMessage

type envelopeCodec struct {
	groupField string
	countField string
}

func (ec envelopeCodec) parse(raw []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &MalformedPayloadError{Reason: "not a JSON object", Err: err}
	}
	// "null" decodes without error into a nil map.
	if env == nil {
		return nil, &MalformedPayloadError{Reason: "not a JSON object"}
	}
	return env, nil
}

// group extracts the group identifier from a raw payload.
func (ec envelopeCodec) group(raw []byte) (string, error) {
	env, err := ec.parse(raw)
	if err != nil {
		return "", err
	}
	return ec.groupOf(env)
}

func (ec envelopeCodec) groupOf(env envelope) (string, error) {
	v, ok := env[ec.groupField]
	if !ok {
		return "", &MalformedPayloadError{Reason: "missing field " + strconv.Quote(ec.groupField)}
	}
	var id string
	if err := json.Unmarshal(v, &id); err != nil {
		return "", &MalformedPayloadError{Reason: "field " + strconv.Quote(ec.groupField) + " is not a string", Err: err}
	}
	if id == "" {
		return "", &MalformedPayloadError{Reason: "field " + strconv.Quote(ec.groupField) + " is empty"}
	}
	return id, nil
}

// withCount returns raw with the member-count field set to n.
func (ec envelopeCodec) withCount(raw []byte, n int) ([]byte, error) {
	env, err := ec.parse(raw)
	if err != nil {
		return nil, err
	}
	env[ec.countField] = json.RawMessage(strconv.Itoa(n))

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(env); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
