// The MIT License
//
// Copyright (c) 2020 Temporal Technologies Inc.  All rights reserved.
//
// Copyright (c) 2020 Uber Technologies, Inc.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package converter

import (
	"fmt"
	"reflect"

	gogoproto "github.com/gogo/protobuf/proto"
	commonpb "go.temporal.io/api/common/v1"
	"google.golang.org/protobuf/proto"

	"github.com/temporal-community/gosdk/internal/common/util"
)

// ProtoPayloadConverter converts proto.Message/gogoproto.Message values
// to/from their binary wire encoding, tagged MetadataEncodingProto. Kept
// alongside ProtoJSONPayloadConverter so both protobuf families in play are
// handled: server-generated types use APIv2, user-defined gogo messages
// use gogo.
type ProtoPayloadConverter struct{}

// NewProtoPayloadConverter creates a new instance of ProtoPayloadConverter.
func NewProtoPayloadConverter() *ProtoPayloadConverter {
	return &ProtoPayloadConverter{}
}

// ToPayload converts a single proto value to a payload using binary
// marshaling. Returns nil, nil for values that aren't proto messages.
func (c *ProtoPayloadConverter) ToPayload(value interface{}) (*commonpb.Payload, error) {
	if valueProto, ok := value.(proto.Message); ok {
		data, err := proto.Marshal(valueProto)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnableToEncode, err)
		}
		return newProtoPayload(data, c, messageName(valueProto)), nil
	}

	if valueGogoProto, ok := value.(gogoproto.Message); ok {
		data, err := gogoproto.Marshal(valueGogoProto)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnableToEncode, err)
		}
		return newProtoPayload(data, c, valueGogoProto.String()), nil
	}

	return nil, nil
}

// FromPayload converts a single proto value from a payload.
func (c *ProtoPayloadConverter) FromPayload(payload *commonpb.Payload, valuePtr interface{}) error {
	value := reflect.ValueOf(valuePtr)
	if value.Kind() != reflect.Ptr {
		return ErrValueIsNotPointer
	}
	elem := value.Elem()
	if !elem.CanSet() {
		return fmt.Errorf("type: %T: %w", valuePtr, ErrUnableToSetValue)
	}

	protoValue := elem.Interface()
	gogoProtoMessage, isGogoProtoMessage := protoValue.(gogoproto.Message)
	protoMessage, isProtoMessage := protoValue.(proto.Message)
	if !isGogoProtoMessage && !isProtoMessage {
		return fmt.Errorf("value: %v of type: %T: %w", elem, elem, ErrValueDoesntImplementProtoMessage)
	}

	if util.IsInterfaceNil(protoValue) {
		newProtoValue := reflect.New(elem.Type().Elem())
		if isProtoMessage {
			protoMessage = newProtoValue.Interface().(proto.Message)
		} else {
			gogoProtoMessage = newProtoValue.Interface().(gogoproto.Message)
		}
		elem.Set(newProtoValue)
	}

	var err error
	if isProtoMessage {
		err = proto.Unmarshal(payload.GetData(), protoMessage)
	} else {
		err = gogoproto.Unmarshal(payload.GetData(), gogoProtoMessage)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnableToDecode, err)
	}
	return nil
}

// ToString renders the payload's raw bytes length; proto binary isn't
// readable, unlike its JSON sibling.
func (c *ProtoPayloadConverter) ToString(payload *commonpb.Payload) string {
	return fmt.Sprintf("%d bytes of %s", len(payload.GetData()), string(payload.GetMetadata()[MetadataType]))
}

// Encoding returns MetadataEncodingProto.
func (c *ProtoPayloadConverter) Encoding() string { return MetadataEncodingProto }

func messageName(m proto.Message) string {
	return string(m.ProtoReflect().Descriptor().FullName())
}

func newProtoPayload(data []byte, converter PayloadConverter, typeName string) *commonpb.Payload {
	return &commonpb.Payload{
		Metadata: map[string][]byte{
			MetadataEncoding: []byte(converter.Encoding()),
			MetadataType:     []byte(typeName),
		},
		Data: data,
	}
}
