package message

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

func Encode(msg proto.Message) ([]byte, error) {
	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("proto encode: %w", err)
	}
	return data, nil
}

func Decode(data []byte, msg proto.Message) error {
	if err := proto.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("proto decode: %w", err)
	}
	return nil
}

// EncodeFields encodes a flat field map as a google.protobuf.Struct.
func EncodeFields(fields map[string]any) ([]byte, error) {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("proto struct: %w", err)
	}
	return Encode(s)
}

func DecodeFields(data []byte) (map[string]any, error) {
	s := &structpb.Struct{}
	if err := Decode(data, s); err != nil {
		return nil, err
	}
	return s.AsMap(), nil
}
