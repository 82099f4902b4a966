package compiler

import (
	"net/url"

	"cuelang.org/go/cue"
	"github.com/google/uuid"

	"github.com/saifalharthi/materialize/internal/dataflow"
	"github.com/saifalharthi/materialize/internal/repr"
)

// localSourceNamespace scopes the ids derived for local sources.
var localSourceNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("materialize:source:local"))

// CompileSource parses a CUE value into a Source.
//
// The CUE value should be the source struct itself, e.g.:
//
//	source: orders: {
//		kafka: {addr: "broker:9092", topic: "orders", raw_schema: "..."}
//		desc: [{name: "id", type: "int64"}]
//	}
//
// Exactly one of kafka or local names the connector. A kafka source with
// a raw_schema may omit desc; its shape is derived from the Avro record.
// A local source without an explicit id gets one derived from its name so
// recompiling the same file yields the same definition.
func CompileSource(v cue.Value) (dataflow.Source, error) {
	if err := v.Err(); err != nil {
		return dataflow.Source{}, formatCUEError(err)
	}
	name := labelOf(v)

	kafkaVal := v.LookupPath(cue.ParsePath("kafka"))
	localVal := v.LookupPath(cue.ParsePath("local"))
	if kafkaVal.Exists() == localVal.Exists() {
		return dataflow.Source{}, compileErrorf("connector", v.Pos(), "exactly one of kafka or local is required")
	}

	var conn dataflow.SourceConnector
	var schemaDesc *repr.RelationDesc
	if kafkaVal.Exists() {
		kc, derived, err := compileKafkaSource(kafkaVal)
		if err != nil {
			return dataflow.Source{}, err
		}
		conn, schemaDesc = kc, derived
	} else {
		lc, err := compileLocalSource(name, localVal)
		if err != nil {
			return dataflow.Source{}, err
		}
		conn = lc
	}

	desc, ok, err := lookupDesc(v)
	if err != nil {
		return dataflow.Source{}, err
	}
	switch {
	case !ok && schemaDesc == nil:
		return dataflow.Source{}, compileErrorf("desc", v.Pos(), "desc is required")
	case !ok:
		desc = *schemaDesc
	case schemaDesc != nil && !sameShape(desc, *schemaDesc):
		return dataflow.Source{}, compileErrorf("raw_schema", kafkaVal.Pos(), "avro record fields do not match desc")
	}

	src := dataflow.NewSource(name, conn, desc)
	if err := dataflow.Validate(src); err != nil {
		return dataflow.Source{}, compileErrorf("source", v.Pos(), "%v", err)
	}
	return src, nil
}

func compileKafkaSource(v cue.Value) (dataflow.KafkaSourceConnector, *repr.RelationDesc, error) {
	var kc dataflow.KafkaSourceConnector
	var err error
	if kc.Addr, _, err = lookupString(v, "addr", true); err != nil {
		return kc, nil, err
	}
	if kc.Topic, _, err = lookupString(v, "topic", true); err != nil {
		return kc, nil, err
	}

	raw, hasSchema, err := lookupString(v, "raw_schema", false)
	if err != nil {
		return kc, nil, err
	}
	var derived *repr.RelationDesc
	if hasSchema {
		desc, err := avroDesc(raw)
		if err != nil {
			return kc, nil, compileErrorf("raw_schema", v.Pos(), "%v", err)
		}
		kc.RawSchema = raw
		derived = &desc
	}

	registry, ok, err := lookupString(v, "schema_registry_url", false)
	if err != nil {
		return kc, nil, err
	}
	if ok {
		u, err := url.Parse(registry)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return kc, nil, compileErrorf("schema_registry_url", v.Pos(), "invalid url %q", registry)
		}
		kc.SchemaRegistryURL = u
	}
	return kc, derived, nil
}

func compileLocalSource(name string, v cue.Value) (dataflow.LocalSourceConnector, error) {
	id, ok, err := lookupString(v, "id", false)
	if err != nil {
		return dataflow.LocalSourceConnector{}, err
	}
	if !ok {
		return dataflow.LocalSourceConnector{ID: uuid.NewSHA1(localSourceNamespace, []byte(name))}, nil
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return dataflow.LocalSourceConnector{}, compileErrorf("local.id", v.Pos(), "invalid uuid %q", id)
	}
	return dataflow.LocalSourceConnector{ID: parsed}, nil
}
