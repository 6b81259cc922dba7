package event

import (
	"bytes"
	"chat-relay/envelope"
	"chat-relay/errors"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"reflect"
	"strings"

	"github.com/pion/webrtc/v4"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const schemaBaseURL = "https://chat-relay.local/schemas/"

// Frame is the wire shape of every real-time message. Inbound Data is a JSON
// string holding an envelope.
type Frame struct {
	Event Name            `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Pipeline turns raw frames into validated events: decrypt, parse, validate
// against the event's schema, decode into its variant.
type Pipeline struct {
	codec   *envelope.Codec
	schemas map[Name]*jsonschema.Schema
	log     *slog.Logger
}

func NewPipeline(log *slog.Logger, codec *envelope.Codec) (*Pipeline, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020

	files, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		b, err := schemaFS.ReadFile(path.Join("schemas", f.Name()))
		if err != nil {
			return nil, err
		}
		if err := c.AddResource(schemaBaseURL+f.Name(), bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("event schema %s load failed: %w", f.Name(), err)
		}
	}

	schemas := make(map[Name]*jsonschema.Schema, len(variants))
	for name := range variants {
		compiled, err := c.Compile(schemaBaseURL + string(name) + ".json")
		if err != nil {
			return nil, fmt.Errorf("event schema %s compile failed: %w", name, err)
		}
		schemas[name] = compiled
	}
	return &Pipeline{codec: codec, schemas: schemas, log: log}, nil
}

// Decode validates one raw frame. Every failure wraps a taxonomy error, so
// errors.Classify can answer it on the same connection.
func (p *Pipeline) Decode(raw []byte) (Event, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil || frame.Event == "" {
		return nil, errors.ErrMalformedEvent
	}
	newVariant, ok := variants[frame.Event]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownEvent, frame.Event)
	}

	var sealed string
	if err := json.Unmarshal(frame.Data, &sealed); err != nil {
		return nil, fmt.Errorf("%w: data must be an envelope string", errors.ErrMalformedEvent)
	}
	plain, err := p.codec.Decrypt(sealed)
	if err != nil {
		return nil, err
	}

	var doc any
	if err := json.Unmarshal(plain, &doc); err != nil {
		return nil, fmt.Errorf("%w: payload is not JSON", errors.ErrMalformedEvent)
	}
	if err := p.schemas[frame.Event].Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %s", errors.ErrValidation, describe(err))
	}

	ev := newVariant()
	if err := json.Unmarshal(plain, ev); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrMalformedEvent, err)
	}
	if err := checkSDP(ev); err != nil {
		return nil, err
	}
	return reflect.ValueOf(ev).Elem().Interface().(Event), nil
}

// Encode builds an outbound frame. Data is sealed in an envelope, except for
// error frames which stay readable by a client that cannot decrypt.
func (p *Pipeline) Encode(name Name, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	if name == ErrorEvent {
		return json.Marshal(Frame{Event: name, Data: payload})
	}
	sealed, err := p.codec.Encrypt(payload)
	if err != nil {
		return nil, err
	}
	quoted, err := json.Marshal(sealed)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: name, Data: quoted})
}

// EncodeError renders the universal error frame for err.
func (p *Pipeline) EncodeError(err error) ([]byte, error) {
	return p.Encode(ErrorEvent, errors.Classify(err))
}

// Seal encrypts a payload for storage or transport.
func (p *Pipeline) Seal(plaintext string) (string, error) {
	return p.codec.EncryptString(plaintext)
}

func checkSDP(ev Event) error {
	var desc *webrtc.SessionDescription
	switch e := ev.(type) {
	case *CreateProducer:
		desc = &e.SDP
	case *CreateConsumerForProducer:
		desc = &e.SDP
	default:
		return nil
	}
	if desc.Type == webrtc.SDPTypeUnknown || strings.TrimSpace(desc.SDP) == "" {
		return errors.ErrInvalidSDP
	}
	return nil
}

// describe keeps the innermost schema failure, which names the offending
// field, instead of the full validation tree.
func describe(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	loc := ve.InstanceLocation
	if loc == "" {
		loc = "/"
	}
	return fmt.Sprintf("%s: %s", loc, ve.Message)
}
