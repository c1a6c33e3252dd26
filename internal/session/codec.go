package session

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ShayCichocki/crew/internal/limits"
)

// Kind tags a serialized record.
type Kind string

const (
	KindState         Kind = "session_state"
	KindMessage       Kind = "message"
	KindAgentContext  Kind = "agent_context"
	KindWorkflowState Kind = "workflow_state"
	KindError         Kind = "error_context"
)

// Record is implemented only by the serializable session entities.
type Record interface {
	Kind() Kind
	sealed()
}

// ErrorRecord wraps an error context so it can travel as a Record.
type ErrorRecord struct {
	limits.ErrorContext
}

func (*State) Kind() Kind         { return KindState }
func (*Message) Kind() Kind       { return KindMessage }
func (*AgentContext) Kind() Kind  { return KindAgentContext }
func (*WorkflowState) Kind() Kind { return KindWorkflowState }
func (*ErrorRecord) Kind() Kind   { return KindError }

func (*State) sealed()         {}
func (*Message) sealed()       {}
func (*AgentContext) sealed()  {}
func (*WorkflowState) sealed() {}
func (*ErrorRecord) sealed()   {}

type envelope struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Encode serializes r with its kind tag.
func Encode(r Record) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", r.Kind(), err)
	}
	return json.Marshal(envelope{Kind: r.Kind(), Data: data})
}

// Decode reverses Encode. Unknown kinds are an error.
func Decode(data []byte) (Record, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	var r Record
	switch env.Kind {
	case KindState:
		r = &State{}
	case KindMessage:
		r = &Message{}
	case KindAgentContext:
		r = &AgentContext{}
	case KindWorkflowState:
		r = &WorkflowState{}
	case KindError:
		r = &ErrorRecord{}
	default:
		return nil, fmt.Errorf("decode record: unknown kind %q", env.Kind)
	}
	if err := json.Unmarshal(env.Data, r); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Kind, err)
	}
	return r, nil
}

// DefaultChunkSize is the chunk length EncodeChunked uses when size is not positive.
const DefaultChunkSize = 1 << 20

// EncodeChunked encodes r and splits the result into chunks of at most
// size bytes, for stores that cap value sizes.
func EncodeChunked(r Record, size int) ([][]byte, error) {
	if size <= 0 {
		size = DefaultChunkSize
	}
	data, err := Encode(r)
	if err != nil {
		return nil, err
	}
	chunks := make([][]byte, 0, (len(data)+size-1)/size)
	for len(data) > 0 {
		n := min(size, len(data))
		chunks = append(chunks, data[:n:n])
		data = data[n:]
	}
	return chunks, nil
}

// DecodeChunked joins chunks written by EncodeChunked and decodes them.
func DecodeChunked(chunks [][]byte) (Record, error) {
	return Decode(bytes.Join(chunks, nil))
}
