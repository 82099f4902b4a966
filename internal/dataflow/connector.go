package dataflow

import (
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"github.com/saifalharthi/materialize/internal/tail"
	"github.com/saifalharthi/materialize/internal/timely"
)

// SourceConnector describes where a source reads from.
//
// This is a sealed interface - only types in this package implement it.
type SourceConnector interface {
	sourceConnector() // Marker method - seals interface to this package
}

// KafkaSourceConnector reads a topic from a Kafka-style log.
type KafkaSourceConnector struct {
	// Addr is the broker address as host:port.
	Addr              string
	Topic             string
	// RawSchema is the Avro schema text of the topic's records.
	RawSchema         string
	// SchemaRegistryURL is optional.
	SchemaRegistryURL *url.URL
}

func (KafkaSourceConnector) sourceConnector() {}

// LocalSourceConnector is fed by local commands, such as table inserts.
type LocalSourceConnector struct {
	ID uuid.UUID
}

func (LocalSourceConnector) sourceConnector() {}

// SinkConnector describes where a sink writes to.
//
// This is a sealed interface - only types in this package implement it.
type SinkConnector interface {
	sinkConnector() // Marker method - seals interface to this package
}

// KafkaSinkConnector writes to a Kafka-style topic.
type KafkaSinkConnector struct {
	Addr     string
	Topic    string
	SchemaID int32
}

func (KafkaSinkConnector) sinkConnector() {}

// TailSinkConnector streams every update at or after Since to Handle.
type TailSinkConnector struct {
	Handle *tail.Channel
	Since  timely.Timestamp
}

func (TailSinkConnector) sinkConnector() {}

// NewLocalSource creates a local connector with a fresh id.
func NewLocalSource() LocalSourceConnector {
	return LocalSourceConnector{ID: uuid.New()}
}

// validateAddr checks that addr is host:port with a numeric port.
func validateAddr(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}
	if host == "" {
		return fmt.Errorf("invalid address %q: missing host", addr)
	}
	if n, err := strconv.ParseUint(port, 10, 16); err != nil || n == 0 {
		return fmt.Errorf("invalid address %q: bad port %q", addr, port)
	}
	return nil
}

func validateSourceConnector(c SourceConnector) error {
	switch sc := c.(type) {
	case KafkaSourceConnector:
		if err := validateAddr(sc.Addr); err != nil {
			return err
		}
		if sc.Topic == "" {
			return fmt.Errorf("kafka source: empty topic")
		}
		if sc.SchemaRegistryURL != nil && sc.SchemaRegistryURL.Host == "" {
			return fmt.Errorf("kafka source: schema registry url %q has no host", sc.SchemaRegistryURL)
		}
	case LocalSourceConnector:
		if sc.ID == uuid.Nil {
			return fmt.Errorf("local source: nil id")
		}
	case nil:
		return fmt.Errorf("missing source connector")
	default:
		return fmt.Errorf("unknown source connector %T", c)
	}
	return nil
}

func validateSinkConnector(c SinkConnector) error {
	switch sc := c.(type) {
	case KafkaSinkConnector:
		if err := validateAddr(sc.Addr); err != nil {
			return err
		}
		if sc.Topic == "" {
			return fmt.Errorf("kafka sink: empty topic")
		}
	case TailSinkConnector:
		if sc.Handle == nil {
			return fmt.Errorf("tail sink: nil handle")
		}
	case nil:
		return fmt.Errorf("missing sink connector")
	default:
		return fmt.Errorf("unknown sink connector %T", c)
	}
	return nil
}
