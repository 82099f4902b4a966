package compiler

import (
	"math"

	"cuelang.org/go/cue"

	"github.com/saifalharthi/materialize/internal/dataflow"
)

// CompileSink parses a CUE value into a Sink, e.g.:
//
//	sink: big_out: {
//		from: "big"
//		kafka: {addr: "broker:9092", topic: "big", schema_id: 7}
//	}
//
// The upstream shape is looked up in rels. Tail sinks deliver to an
// in-process channel and cannot be declared in a file.
func CompileSink(v cue.Value, rels Relations) (dataflow.Sink, error) {
	if err := v.Err(); err != nil {
		return dataflow.Sink{}, formatCUEError(err)
	}
	name := labelOf(v)

	from, _, err := lookupString(v, "from", true)
	if err != nil {
		return dataflow.Sink{}, err
	}
	fromDesc, ok := rels[from]
	if !ok {
		return dataflow.Sink{}, compileErrorf("from", v.Pos(), "unknown relation %q", from)
	}

	if v.LookupPath(cue.ParsePath("tail")).Exists() {
		return dataflow.Sink{}, compileErrorf("tail", v.Pos(), "tail sinks are opened at runtime, not declared")
	}
	kafkaVal := v.LookupPath(cue.ParsePath("kafka"))
	if !kafkaVal.Exists() {
		return dataflow.Sink{}, compileErrorf("connector", v.Pos(), "kafka is required")
	}

	var kc dataflow.KafkaSinkConnector
	if kc.Addr, _, err = lookupString(kafkaVal, "addr", true); err != nil {
		return dataflow.Sink{}, err
	}
	if kc.Topic, _, err = lookupString(kafkaVal, "topic", true); err != nil {
		return dataflow.Sink{}, err
	}
	schemaID, err := lookupInt(kafkaVal, "schema_id")
	if err != nil {
		return dataflow.Sink{}, err
	}
	if schemaID < math.MinInt32 || schemaID > math.MaxInt32 {
		return dataflow.Sink{}, compileErrorf("schema_id", kafkaVal.Pos(), "schema id %d out of range", schemaID)
	}
	kc.SchemaID = int32(schemaID)

	sink := dataflow.NewSink(name, from, fromDesc, kc)
	if err := dataflow.Validate(sink); err != nil {
		return dataflow.Sink{}, compileErrorf("sink", v.Pos(), "%v", err)
	}
	return sink, nil
}
