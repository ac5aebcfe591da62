package blockscout

import (
	"bytes"
	"encoding/json"

	xerrors "Superio-Chain/internal/errors"
)

// ShapeKind 标识 MCP 文本内容的顶层结构。
type ShapeKind int

const (
	// ShapeList 是顶层 JSON 数组。
	ShapeList ShapeKind = iota + 1
	// ShapeItems 是带 data 数组（或 data.items 数组）的对象。
	ShapeItems
	// ShapeObject 是其余 JSON 对象。
	ShapeObject
)

func (k ShapeKind) String() string {
	switch k {
	case ShapeList:
		return "list"
	case ShapeItems:
		return "object-with-items"
	case ShapeObject:
		return "object"
	default:
		return "unknown"
	}
}

// ErrUnrecognizedShape 表示内容不是任何已知结构。
var ErrUnrecognizedShape = xerrors.New(xerrors.CodeUnrecognizedShape, "")

// NextCall 是分页描述中的后续调用。
type NextCall struct {
	ToolName string         `json:"tool_name"`
	Params   map[string]any `json:"params"`
}

// Shape 是解码后的内容。Items 仅在 list 与 object-with-items 时有值，
// Object 仅在 object 时有值。
type Shape struct {
	Kind   ShapeKind
	Items  []json.RawMessage
	Object json.RawMessage
	Next   *NextCall
}

type toolResponse struct {
	Data       json.RawMessage `json:"data"`
	Pagination *struct {
		NextCall *NextCall `json:"next_call"`
	} `json:"pagination"`
}

// DecodeShape 按顶层结构解码 MCP 文本内容。
func DecodeShape(text string) (Shape, error) {
	trimmed := bytes.TrimSpace([]byte(text))
	if len(trimmed) == 0 {
		return Shape{}, xerrors.Wrap(xerrors.CodeUnrecognizedShape, ErrUnrecognizedShape, "内容为空")
	}
	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return Shape{}, xerrors.Wrap(xerrors.CodeUnrecognizedShape, err, "数组内容无法解析")
		}
		return Shape{Kind: ShapeList, Items: items}, nil
	case '{':
		var resp toolResponse
		if err := json.Unmarshal(trimmed, &resp); err != nil {
			return Shape{}, xerrors.Wrap(xerrors.CodeUnrecognizedShape, err, "对象内容无法解析")
		}
		var next *NextCall
		if resp.Pagination != nil && resp.Pagination.NextCall != nil && resp.Pagination.NextCall.ToolName != "" {
			next = resp.Pagination.NextCall
		}
		if items, ok := itemsOf(resp.Data); ok {
			return Shape{Kind: ShapeItems, Items: items, Next: next}, nil
		}
		obj := json.RawMessage(trimmed)
		if isObject(resp.Data) {
			obj = resp.Data
		}
		return Shape{Kind: ShapeObject, Object: obj, Next: next}, nil
	default:
		return Shape{}, xerrors.Wrap(xerrors.CodeUnrecognizedShape, ErrUnrecognizedShape, "内容不是 JSON 数组或对象")
	}
}

func itemsOf(data json.RawMessage) ([]json.RawMessage, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, false
	}
	switch data[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, false
		}
		return items, true
	case '{':
		var nested struct {
			Items []json.RawMessage `json:"items"`
		}
		if err := json.Unmarshal(data, &nested); err != nil || nested.Items == nil {
			return nil, false
		}
		return nested.Items, true
	}
	return nil, false
}

func isObject(data json.RawMessage) bool {
	data = bytes.TrimSpace(data)
	return len(data) > 0 && data[0] == '{'
}

// DecodeItems 把 Items 解码为具体类型。
func DecodeItems[T any](s Shape) ([]T, error) {
	if s.Kind == ShapeObject {
		return nil, xerrors.Wrap(xerrors.CodeUnrecognizedShape, ErrUnrecognizedShape, "期望列表，得到对象")
	}
	out := make([]T, 0, len(s.Items))
	for _, raw := range s.Items {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeUnrecognizedShape, err, "列表元素无法解析")
		}
		out = append(out, v)
	}
	return out, nil
}

// DecodeObject 把 Object 解码为具体类型。
func DecodeObject[T any](s Shape) (T, error) {
	var v T
	if s.Kind != ShapeObject {
		return v, xerrors.Wrap(xerrors.CodeUnrecognizedShape, ErrUnrecognizedShape, "期望对象，得到 "+s.Kind.String())
	}
	if err := json.Unmarshal(s.Object, &v); err != nil {
		return v, xerrors.Wrap(xerrors.CodeUnrecognizedShape, err, "对象无法解析")
	}
	return v, nil
}
