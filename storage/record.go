package storage

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Records are stored as protobuf Structs: compact, self-describing, and
// readable without generated code. Times are RFC3339Nano strings because
// Struct numbers are float64 and would lose nanoseconds.

func encodeRecord(fields map[string]any) ([]byte, error) {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return proto.Marshal(s)
}

func decodeRecord(b []byte) (record, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(b, &s); err != nil {
		return record{}, fmt.Errorf("decode record: %w", err)
	}
	return record{&s}, nil
}

type record struct {
	*structpb.Struct
}

func (r record) str(key string) string {
	return r.GetFields()[key].GetStringValue()
}

func (r record) num(key string) int {
	return int(r.GetFields()[key].GetNumberValue())
}

func (r record) timestamp(key string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, r.str(key))
	if err != nil {
		return time.Time{}
	}
	return t
}

func (r record) list(key string) []string {
	values := r.GetFields()[key].GetListValue().GetValues()
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, v.GetStringValue())
	}
	return out
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
