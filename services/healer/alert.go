package healer

import (
	"bytes"
	"encoding/json"

	"github.com/rs/zerolog"
)

// snsSource is the record member used by SNS deliveries.
const snsSource = "Sns"

type eventEnvelope struct {
	Records []map[string]json.RawMessage `json:"Records"`
}

// ParseEvent decodes the first record of an event envelope into an
// AlertMessage. A JSON object without Records is taken as the alert message
// itself. It never fails: undecodable input is wrapped under RawMessageKey
// and logged as a warning.
func ParseEvent(raw []byte, logger zerolog.Logger) AlertMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return AlertMessage{}
	}

	if !json.Valid(trimmed) {
		logger.Warn().Str("payload", string(trimmed)).Msg("event is not JSON, treating as plain text")
		return AlertMessage{RawMessageKey: string(trimmed)}
	}

	var msg AlertMessage
	var env eventEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil || env.Records == nil {
		// Direct invocations deliver the alert message itself.
		msg = decodeMessage(trimmed, logger)
	} else {
		if len(env.Records) == 0 {
			logger.Warn().Msg("event has no records")
			return AlertMessage{}
		}
		payload, ok := recordMessage(env.Records[0])
		if !ok {
			logger.Warn().Msg("first record carries no Message")
			return AlertMessage{}
		}
		msg = decodeMessage(payload, logger)
	}

	if data, err := json.Marshal(msg); err == nil {
		logger.Info().RawJSON("message", data).Msg("parsed alert message")
	}
	return msg
}

// recordMessage finds the Message field of a record, preferring the SNS source.
func recordMessage(record map[string]json.RawMessage) (json.RawMessage, bool) {
	if src, ok := record[snsSource]; ok {
		if msg, ok := messageField(src); ok {
			return msg, true
		}
	}
	for key, src := range record {
		if key == snsSource {
			continue
		}
		if msg, ok := messageField(src); ok {
			return msg, true
		}
	}
	return nil, false
}

func messageField(src json.RawMessage) (json.RawMessage, bool) {
	var source map[string]json.RawMessage
	if err := json.Unmarshal(src, &source); err != nil {
		return nil, false
	}
	msg, ok := source["Message"]
	return msg, ok
}

func decodeMessage(payload json.RawMessage, logger zerolog.Logger) AlertMessage {
	var text string
	if err := json.Unmarshal(payload, &text); err == nil {
		var msg AlertMessage
		if err := json.Unmarshal([]byte(text), &msg); err != nil || msg == nil {
			logger.Warn().Str("message", text).Msg("could not parse message as JSON object, treating as plain text")
			return AlertMessage{RawMessageKey: text}
		}
		return msg
	}

	var msg AlertMessage
	if err := json.Unmarshal(payload, &msg); err != nil || msg == nil {
		logger.Warn().Str("message", string(payload)).Msg("message is neither text nor an object, treating as plain text")
		return AlertMessage{RawMessageKey: string(payload)}
	}
	return msg
}

// lookup walks a nested path of object keys.
func (m AlertMessage) lookup(path ...string) (any, bool) {
	var cur any = map[string]any(m)
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// String returns the string at path, or "" when absent or not a string.
func (m AlertMessage) String(path ...string) string {
	v, ok := m.lookup(path...)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
