package pipeline

import (
	"encoding/json"

	"surveychat/internal/execution"
)

// Envelope is the stable output contract of the orchestrator. SQLQuery and
// RetrievedContext are always present (possibly empty strings) so callers
// never need null-checks on those two fields. Exactly one of Data/Error
// carries the outcome; a successful query with no matches yields an empty
// non-nil Data slice.
type Envelope struct {
	SQLQuery         string          `json:"sqlQuery"`
	RetrievedContext string          `json:"retrievedContext"`
	Data             []execution.Row `json:"data,omitempty"`
	Error            string          `json:"error,omitempty"`
}

// NewEnvelope packages an execution result with the query and context that
// produced it. The attempted SQL is preserved even on failure.
func NewEnvelope(sqlQuery, retrievedContext string, result execution.Result) Envelope {
	env := Envelope{
		SQLQuery:         sqlQuery,
		RetrievedContext: retrievedContext,
	}
	switch result.Kind {
	case execution.KindRows:
		env.Data = result.Rows
	case execution.KindEmpty:
		env.Data = []execution.Row{}
	case execution.KindError:
		env.Error = result.Message
	}
	return env
}

// ErrorEnvelope builds an error envelope, preserving whatever query and
// context were established before the failure.
func ErrorEnvelope(sqlQuery, retrievedContext, message string) Envelope {
	return Envelope{
		SQLQuery:         sqlQuery,
		RetrievedContext: retrievedContext,
		Error:            message,
	}
}

// IsError reports whether the envelope carries an error.
func (e Envelope) IsError() bool { return e.Error != "" }

// envelopeWire keeps data as raw JSON so an empty-but-successful result
// serializes as "data": [] rather than being omitted, while the error
// variant carries no data key at all.
type envelopeWire struct {
	SQLQuery         string          `json:"sqlQuery"`
	RetrievedContext string          `json:"retrievedContext"`
	Data             json.RawMessage `json:"data,omitempty"`
	Error            string          `json:"error,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (e Envelope) MarshalJSON() ([]byte, error) {
	wire := envelopeWire{
		SQLQuery:         e.SQLQuery,
		RetrievedContext: e.RetrievedContext,
		Error:            e.Error,
	}
	if e.Data != nil {
		raw, err := json.Marshal(e.Data)
		if err != nil {
			return nil, err
		}
		wire.Data = raw
	}
	return json.Marshal(wire)
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Envelope) UnmarshalJSON(raw []byte) error {
	var wire envelopeWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return err
	}
	e.SQLQuery = wire.SQLQuery
	e.RetrievedContext = wire.RetrievedContext
	e.Error = wire.Error
	e.Data = nil
	if wire.Data != nil {
		if err := json.Unmarshal(wire.Data, &e.Data); err != nil {
			return err
		}
		if e.Data == nil {
			e.Data = []execution.Row{}
		}
	}
	return nil
}
