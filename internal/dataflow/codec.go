package dataflow

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/google/uuid"

	"github.com/saifalharthi/materialize/internal/expr"
	"github.com/saifalharthi/materialize/internal/repr"
	"github.com/saifalharthi/materialize/internal/tail"
	"github.com/saifalharthi/materialize/internal/timely"
)

const (
	tagKafka = "kafka"
	tagLocal = "local"
	tagTail  = "tail"
)

type kafkaSourceJSON struct {
	Addr              string  `json:"addr"`
	Topic             string  `json:"topic"`
	RawSchema         string  `json:"raw_schema"`
	SchemaRegistryURL *string `json:"schema_registry_url"`
}

type localSourceJSON struct {
	ID uuid.UUID `json:"id"`
}

type kafkaSinkJSON struct {
	Addr     string `json:"addr"`
	Topic    string `json:"topic"`
	SchemaID int32  `json:"schema_id"`
}

type tailSinkJSON struct {
	Handle uuid.UUID        `json:"handle"`
	Since  timely.Timestamp `json:"since"`
}

type sourceJSON struct {
	Name      string            `json:"name"`
	Connector json.RawMessage   `json:"connector"`
	Desc      repr.RelationDesc `json:"desc"`
}

type sinkJSON struct {
	Name      string            `json:"name"`
	From      string            `json:"from"`
	FromDesc  repr.RelationDesc `json:"from_desc"`
	Connector json.RawMessage   `json:"connector"`
}

type viewJSON struct {
	Name   string            `json:"name"`
	RawSQL string            `json:"raw_sql"`
	Expr   json.RawMessage   `json:"expr"`
	Desc   repr.RelationDesc `json:"desc"`
	AsOf   *timely.Frontier  `json:"as_of"`
}

func tagged(tag string, body any) ([]byte, error) {
	inner, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]json.RawMessage{tag: inner})
}

func untag(data []byte) (string, json.RawMessage, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return "", nil, fmt.Errorf("expected tagged object: %w", err)
	}
	if len(m) != 1 {
		return "", nil, fmt.Errorf("tagged object must have exactly one key, got %d", len(m))
	}
	for tag, body := range m {
		return tag, body, nil
	}
	panic("unreachable")
}

// Marshal encodes a dataflow in its tagged form.
func Marshal(d Dataflow) ([]byte, error) {
	switch df := d.(type) {
	case Source:
		conn, err := marshalSourceConnector(df.connector)
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", df.name, err)
		}
		return tagged(string(KindSource), sourceJSON{Name: df.name, Connector: conn, Desc: df.desc})
	case Sink:
		conn, err := marshalSinkConnector(df.connector)
		if err != nil {
			return nil, fmt.Errorf("sink %q: %w", df.name, err)
		}
		return tagged(string(KindSink), sinkJSON{Name: df.name, From: df.from, FromDesc: df.fromDesc, Connector: conn})
	case View:
		e, err := expr.MarshalRelation(df.expr)
		if err != nil {
			return nil, fmt.Errorf("view %q: %w", df.name, err)
		}
		return tagged(string(KindView), viewJSON{Name: df.name, RawSQL: df.rawSQL, Expr: e, Desc: df.desc, AsOf: df.asOf})
	case nil:
		return nil, fmt.Errorf("cannot marshal nil dataflow")
	default:
		return nil, fmt.Errorf("unknown dataflow type %T", d)
	}
}

// MarshalJSON implements json.Marshaler for Source.
func (s Source) MarshalJSON() ([]byte, error) { return Marshal(s) }

// MarshalJSON implements json.Marshaler for Sink.
func (s Sink) MarshalJSON() ([]byte, error) { return Marshal(s) }

// MarshalJSON implements json.Marshaler for View.
func (v View) MarshalJSON() ([]byte, error) { return Marshal(v) }

func marshalSourceConnector(c SourceConnector) (json.RawMessage, error) {
	switch sc := c.(type) {
	case KafkaSourceConnector:
		body := kafkaSourceJSON{Addr: sc.Addr, Topic: sc.Topic, RawSchema: sc.RawSchema}
		if sc.SchemaRegistryURL != nil {
			u := sc.SchemaRegistryURL.String()
			body.SchemaRegistryURL = &u
		}
		return tagged(tagKafka, body)
	case LocalSourceConnector:
		return tagged(tagLocal, localSourceJSON(sc))
	default:
		return nil, fmt.Errorf("unknown source connector %T", c)
	}
}

func marshalSinkConnector(c SinkConnector) (json.RawMessage, error) {
	switch sc := c.(type) {
	case KafkaSinkConnector:
		return tagged(tagKafka, kafkaSinkJSON(sc))
	case TailSinkConnector:
		if sc.Handle == nil {
			return nil, fmt.Errorf("tail sink without handle")
		}
		return tagged(tagTail, tailSinkJSON{Handle: sc.Handle.ID(), Since: sc.Since})
	default:
		return nil, fmt.Errorf("unknown sink connector %T", c)
	}
}

// Unmarshal decodes a dataflow produced by Marshal. Tail sink handles are
// resolved through reg; a nil registry resolves nothing.
func Unmarshal(data []byte, reg *tail.Registry) (Dataflow, error) {
	tag, body, err := untag(data)
	if err != nil {
		return nil, decodeError("", err)
	}

	switch Kind(tag) {
	case KindSource:
		var raw sourceJSON
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, decodeError("", err)
		}
		conn, err := unmarshalSourceConnector(raw.Connector)
		if err != nil {
			return nil, decodeError(raw.Name, err)
		}
		return Source{name: raw.Name, connector: conn, desc: raw.Desc}, nil

	case KindSink:
		var raw sinkJSON
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, decodeError("", err)
		}
		conn, err := unmarshalSinkConnector(raw.Name, raw.Connector, reg)
		if err != nil {
			return nil, err
		}
		return Sink{name: raw.Name, from: raw.From, fromDesc: raw.FromDesc, connector: conn}, nil

	case KindView:
		var raw viewJSON
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, decodeError("", err)
		}
		e, err := expr.UnmarshalRelation(raw.Expr)
		if err != nil {
			return nil, decodeError(raw.Name, err)
		}
		return View{name: raw.Name, rawSQL: raw.RawSQL, expr: e, desc: raw.Desc, asOf: raw.AsOf}, nil

	default:
		return nil, decodeError("", fmt.Errorf("unknown dataflow tag %q", tag))
	}
}

func decodeError(name string, err error) *Error {
	return &Error{Code: ErrCodeDecode, Name: name, Err: err}
}

func unmarshalSourceConnector(data []byte) (SourceConnector, error) {
	tag, body, err := untag(data)
	if err != nil {
		return nil, fmt.Errorf("source connector: %w", err)
	}
	switch tag {
	case tagKafka:
		var raw kafkaSourceJSON
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, fmt.Errorf("kafka source: %w", err)
		}
		c := KafkaSourceConnector{Addr: raw.Addr, Topic: raw.Topic, RawSchema: raw.RawSchema}
		if raw.SchemaRegistryURL != nil {
			u, err := url.Parse(*raw.SchemaRegistryURL)
			if err != nil {
				return nil, fmt.Errorf("kafka source: schema registry url: %w", err)
			}
			c.SchemaRegistryURL = u
		}
		return c, nil
	case tagLocal:
		var raw localSourceJSON
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, fmt.Errorf("local source: %w", err)
		}
		return LocalSourceConnector(raw), nil
	default:
		return nil, fmt.Errorf("unknown source connector tag %q", tag)
	}
}

func unmarshalSinkConnector(name string, data []byte, reg *tail.Registry) (SinkConnector, error) {
	tag, body, err := untag(data)
	if err != nil {
		return nil, decodeError(name, fmt.Errorf("sink connector: %w", err))
	}
	switch tag {
	case tagKafka:
		var raw kafkaSinkJSON
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, decodeError(name, fmt.Errorf("kafka sink: %w", err))
		}
		return KafkaSinkConnector(raw), nil
	case tagTail:
		var raw tailSinkJSON
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, decodeError(name, fmt.Errorf("tail sink: %w", err))
		}
		var ch *tail.Channel
		if reg != nil {
			ch, _ = reg.Lookup(raw.Handle)
		}
		if ch == nil {
			return nil, &Error{Code: ErrCodeUnknownTail, Name: name, Message: fmt.Sprintf("tail channel %s is not registered in this process", raw.Handle)}
		}
		return TailSinkConnector{Handle: ch, Since: raw.Since}, nil
	default:
		return nil, decodeError(name, fmt.Errorf("unknown sink connector tag %q", tag))
	}
}
