// frost/core/wire/wire.go
// protobuf 兼容的二进制编码工具：RPC 负载与持久化状态共用

package wire

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrUnexpectedType 字段的 wire type 与预期不符
var ErrUnexpectedType = errors.New("wire: unexpected field type")

// Field 解码得到的单个字段
type Field struct {
	Num    protowire.Number
	Type   protowire.Type
	Varint uint64
	Bytes  []byte
}

// ========== 编码 ==========

// AppendBytes 写入 length-delimited 字段，空值也写入（用于 repeated 元素）
func AppendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// AppendOptionalBytes 空值时省略
func AppendOptionalBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	return AppendBytes(b, num, v)
}

// AppendString 空串时省略
func AppendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// AppendUint 零值时省略
func AppendUint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// AppendInt 有符号整数，零值时省略
func AppendInt(b []byte, num protowire.Number, v int64) []byte {
	return AppendUint(b, num, uint64(v))
}

// AppendBool false 时省略
func AppendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	return AppendUint(b, num, 1)
}

// AppendMessage 写入嵌套消息，msg 为已编码内容
func AppendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	return AppendBytes(b, num, msg)
}

// ========== 解码 ==========

// Walk 顺序遍历所有字段；未知 wire type 的字段被跳过
func Walk(b []byte, fn func(f Field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		f := Field{Num: num, Type: typ}
		switch typ {
		case protowire.VarintType:
			f.Varint, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			f.Bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		if typ != protowire.VarintType && typ != protowire.BytesType {
			continue
		}
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

// ExpectBytes 校验 length-delimited 字段
func (f Field) ExpectBytes() ([]byte, error) {
	if f.Type != protowire.BytesType {
		return nil, fmt.Errorf("%w: field %d", ErrUnexpectedType, f.Num)
	}
	return f.Bytes, nil
}

// ExpectVarint 校验 varint 字段
func (f Field) ExpectVarint() (uint64, error) {
	if f.Type != protowire.VarintType {
		return 0, fmt.Errorf("%w: field %d", ErrUnexpectedType, f.Num)
	}
	return f.Varint, nil
}

// Clone 复制字节，避免引用底层缓冲区
func Clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
