// Package wire frames parameter messages on the notification socket.
//
// Every message is a 2-byte unsigned length in host byte order followed by
// that many bytes of UTF-8 JSON. The JSON is always an object mapping
// parameter names to values.
package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"unicode/utf8"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/kalambet/tweaker/internal/param"
)

// MaxMessageSize is the largest payload a length prefix can describe.
const MaxMessageSize = math.MaxUint16

var (
	ErrMessageTooLarge = errors.New("message exceeds 65535 bytes")
	ErrInvalidJSON     = errors.New("invalid JSON received")
	ErrBadRootType     = errors.New("bad JSON root type received")
	ErrUnsupportedType = errors.New("unsupported JSON type received for value")
)

// WriteMessage writes one framed payload with a single Write call.
func WriteMessage(w io.Writer, payload []byte) error {
	if len(payload) > MaxMessageSize {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(payload))
	}
	buf := make([]byte, 2, 2+len(payload))
	binary.NativeEndian.PutUint16(buf, uint16(len(payload)))
	buf = append(buf, payload...)
	_, err := w.Write(buf)
	return err
}

// ReadMessage reads one framed payload.
func ReadMessage(r io.Reader) ([]byte, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	payload := make([]byte, binary.NativeEndian.Uint16(hdr[:]))
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// WriteValues encodes vs as a JSON object and writes it as one message.
func WriteValues(w io.Writer, vs *param.Values) error {
	payload, err := json.Marshal(vs)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	return WriteMessage(w, payload)
}

// ReadValues reads one message and decodes it in wire order.
func ReadValues(r io.Reader) (*param.Values, error) {
	payload, err := ReadMessage(r)
	if err != nil {
		return nil, err
	}
	return DecodeValues(payload)
}

// DecodeValues decodes a message payload.
func DecodeValues(payload []byte) (*param.Values, error) {
	if !utf8.Valid(payload) {
		return nil, ErrInvalidJSON
	}
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return nil, ErrInvalidJSON
	}
	if trimmed[0] != '{' {
		return nil, ErrBadRootType
	}

	raw := orderedmap.New[string, json.RawMessage]()
	if err := json.Unmarshal(trimmed, raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	vs := param.NewValues()
	for p := raw.Oldest(); p != nil; p = p.Next() {
		var v param.Value
		if err := json.Unmarshal(p.Value, &v); err != nil || !v.IsValid() {
			return nil, fmt.Errorf("%w: %q: %s", ErrUnsupportedType, p.Key, p.Value)
		}
		vs.Set(p.Key, v)
	}
	return vs, nil
}
