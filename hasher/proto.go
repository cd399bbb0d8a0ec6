// hasher/proto.go
// 通用 protobuf 对象哈希：带类型标签的递归哈希，字典按哈希后的键排序

package hasher

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// ErrNilMessage 输入为空
var ErrNilMessage = errors.New("message is nil")

// 类型标签
const (
	tagBool    = 'b'
	tagInt     = 'i'
	tagFloat   = 'f'
	tagUnicode = 'u'
	tagRaw     = 'r'
	tagList    = 'l'
	tagDict    = 'd'
	tagNull    = 'n'
)

// canonicalNaN 所有 NaN 统一为这一位模式
const canonicalNaN uint64 = 0x7ff8000000000000

func tagged(tag byte, payload []byte) []byte {
	h := sha256.New()
	h.Write([]byte{tag})
	h.Write(payload)
	return h.Sum(nil)
}

func hashBool(v bool) []byte {
	if v {
		return tagged(tagBool, []byte("1"))
	}
	return tagged(tagBool, []byte("0"))
}

func hashInt(v int64) []byte {
	return tagged(tagInt, []byte(strconv.FormatInt(v, 10)))
}

func hashUint(v uint64) []byte {
	return tagged(tagInt, []byte(strconv.FormatUint(v, 10)))
}

func hashFloat(v float64) []byte {
	bits := math.Float64bits(v)
	switch {
	case math.IsNaN(v):
		bits = canonicalNaN
	case v == 0:
		bits = 0
	}
	return tagged(tagFloat, binary.BigEndian.AppendUint64(nil, bits))
}

func hashString(v string) []byte {
	return tagged(tagUnicode, []byte(v))
}

func hashBytes(v []byte) []byte {
	return tagged(tagRaw, v)
}

func hashNull() []byte {
	return tagged(tagNull, nil)
}

func hashList(items [][]byte) []byte {
	return tagged(tagList, bytes.Join(items, nil))
}

// hashDict 每项为 keyHash||valueHash，整体按字节序排序，与插入顺序无关
func hashDict(pairs [][]byte) []byte {
	sort.Slice(pairs, func(i, j int) bool { return bytes.Compare(pairs[i], pairs[j]) < 0 })
	return tagged(tagDict, bytes.Join(pairs, nil))
}

func pair(k, v []byte) []byte {
	return append(append(make([]byte, 0, len(k)+len(v)), k...), v...)
}

// HashMessage 32 字节摘要；未设置的字段不参与哈希
func HashMessage(m proto.Message) ([]byte, error) {
	if m == nil {
		return nil, ErrNilMessage
	}
	r := m.ProtoReflect()
	if !r.IsValid() {
		return nil, ErrNilMessage
	}
	return hashMessage(r)
}

func hashMessage(m protoreflect.Message) ([]byte, error) {
	switch v := m.Interface().(type) {
	case *structpb.Struct:
		return hashStruct(v)
	case *structpb.Value:
		return hashStructValue(v)
	case *structpb.ListValue:
		return hashListValue(v)
	case *timestamppb.Timestamp:
		return hashList([][]byte{hashInt(v.GetSeconds()), hashInt(int64(v.GetNanos()))}), nil
	case *durationpb.Duration:
		return hashList([][]byte{hashInt(v.GetSeconds()), hashInt(int64(v.GetNanos()))}), nil
	}
	if isWrapper(m.Descriptor().FullName()) {
		fd := m.Descriptor().Fields().ByNumber(1)
		return hashScalar(fd, m.Get(fd))
	}

	var (
		pairs [][]byte
		err   error
	)
	m.Range(func(fd protoreflect.FieldDescriptor, v protoreflect.Value) bool {
		var vh []byte
		if vh, err = hashField(fd, v); err != nil {
			err = fmt.Errorf("field %s: %w", fd.FullName(), err)
			return false
		}
		pairs = append(pairs, pair(hashInt(int64(fd.Number())), vh))
		return true
	})
	if err != nil {
		return nil, err
	}
	return hashDict(pairs), nil
}

func isWrapper(name protoreflect.FullName) bool {
	switch name {
	case "google.protobuf.DoubleValue", "google.protobuf.FloatValue",
		"google.protobuf.Int64Value", "google.protobuf.UInt64Value",
		"google.protobuf.Int32Value", "google.protobuf.UInt32Value",
		"google.protobuf.BoolValue", "google.protobuf.StringValue",
		"google.protobuf.BytesValue":
		return true
	}
	return false
}

func hashField(fd protoreflect.FieldDescriptor, v protoreflect.Value) ([]byte, error) {
	switch {
	case fd.IsMap():
		mp := v.Map()
		pairs := make([][]byte, 0, mp.Len())
		var err error
		mp.Range(func(k protoreflect.MapKey, mv protoreflect.Value) bool {
			var kh, vh []byte
			if kh, err = hashScalar(fd.MapKey(), k.Value()); err != nil {
				return false
			}
			if vh, err = hashSingular(fd.MapValue(), mv); err != nil {
				return false
			}
			pairs = append(pairs, pair(kh, vh))
			return true
		})
		if err != nil {
			return nil, err
		}
		return hashDict(pairs), nil
	case fd.IsList():
		list := v.List()
		items := make([][]byte, 0, list.Len())
		for i := 0; i < list.Len(); i++ {
			h, err := hashSingular(fd, list.Get(i))
			if err != nil {
				return nil, err
			}
			items = append(items, h)
		}
		return hashList(items), nil
	default:
		return hashSingular(fd, v)
	}
}

func hashSingular(fd protoreflect.FieldDescriptor, v protoreflect.Value) ([]byte, error) {
	if fd.Kind() == protoreflect.MessageKind || fd.Kind() == protoreflect.GroupKind {
		return hashMessage(v.Message())
	}
	return hashScalar(fd, v)
}

func hashScalar(fd protoreflect.FieldDescriptor, v protoreflect.Value) ([]byte, error) {
	switch fd.Kind() {
	case protoreflect.BoolKind:
		return hashBool(v.Bool()), nil
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind,
		protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return hashInt(v.Int()), nil
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind,
		protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return hashUint(v.Uint()), nil
	case protoreflect.EnumKind:
		return hashInt(int64(v.Enum())), nil
	case protoreflect.FloatKind, protoreflect.DoubleKind:
		return hashFloat(v.Float()), nil
	case protoreflect.StringKind:
		return hashString(v.String()), nil
	case protoreflect.BytesKind:
		return hashBytes(v.Bytes()), nil
	}
	return nil, fmt.Errorf("unsupported field kind %s", fd.Kind())
}

// ========== JSON 语义的 well-known types ==========

// hashStruct 值为 null 的键直接跳过
func hashStruct(s *structpb.Struct) ([]byte, error) {
	pairs := make([][]byte, 0, len(s.GetFields()))
	for k, v := range s.GetFields() {
		if isNull(v) {
			continue
		}
		vh, err := hashStructValue(v)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		pairs = append(pairs, pair(hashString(k), vh))
	}
	return hashDict(pairs), nil
}

func isNull(v *structpb.Value) bool {
	if v == nil || v.GetKind() == nil {
		return true
	}
	_, ok := v.GetKind().(*structpb.Value_NullValue)
	return ok
}

func hashStructValue(v *structpb.Value) ([]byte, error) {
	if isNull(v) {
		return hashNull(), nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		return hashFloat(k.NumberValue), nil
	case *structpb.Value_StringValue:
		return hashString(k.StringValue), nil
	case *structpb.Value_BoolValue:
		return hashBool(k.BoolValue), nil
	case *structpb.Value_StructValue:
		return hashStruct(k.StructValue)
	case *structpb.Value_ListValue:
		return hashListValue(k.ListValue)
	}
	return nil, fmt.Errorf("unsupported struct value %T", v.GetKind())
}

// hashListValue 列表中的 null 保留位置
func hashListValue(l *structpb.ListValue) ([]byte, error) {
	items := make([][]byte, 0, len(l.GetValues()))
	for i, v := range l.GetValues() {
		h, err := hashStructValue(v)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		items = append(items, h)
	}
	return hashList(items), nil
}
