package instrument

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

// Kind tags a Node.
type Kind uint8

const (
	KindNull Kind = iota
	KindScalar
	KindString
	KindBytes
	KindSequence
	KindMapping
	KindOpaque
	// KindElided marks a value below the maximum depth.
	KindElided
)

// Node is an untyped value converted once into a closed set of shapes so
// sanitization can switch on Kind instead of probing arbitrary values.
type Node struct {
	Kind   Kind
	Scalar interface{}
	Text   string
	Size   int
	Items  []Node
	Fields []Field
}

// Field is one mapping entry. Fields keep a stable key order.
type Field struct {
	Key   string
	Value Node
}

// NewNode converts v into a tree no deeper than MaxDepth. A pointer met
// again below itself becomes an opaque "Circular" node.
func NewNode(v interface{}) Node {
	b := builder{path: make(map[uintptr]struct{})}
	return b.build(reflect.ValueOf(v), 0)
}

// builder tracks the pointers on the current path. Dereferences do not
// count toward the depth.
type builder struct {
	path map[uintptr]struct{}
}

var (
	timeType  = reflect.TypeOf(time.Time{})
	errorType = reflect.TypeOf((*error)(nil)).Elem()
)

func (b *builder) build(rv reflect.Value, depth int) Node {
	if !rv.IsValid() {
		return Node{Kind: KindNull}
	}
	if depth > MaxDepth {
		return Node{Kind: KindElided}
	}

	switch rv.Kind() {
	case reflect.Interface:
		if rv.IsNil() {
			return Node{Kind: KindNull}
		}
		return b.build(rv.Elem(), depth)
	case reflect.Pointer:
		if rv.IsNil() {
			return Node{Kind: KindNull}
		}
		addr := rv.Pointer()
		if _, seen := b.path[addr]; seen {
			return Node{Kind: KindOpaque, Text: "Circular"}
		}
		b.path[addr] = struct{}{}
		defer delete(b.path, addr)
	}

	if rv.CanInterface() && rv.Type().Implements(errorType) {
		return Node{Kind: KindString, Text: rv.Interface().(error).Error()}
	}
	if rv.Kind() == reflect.Pointer {
		return b.build(rv.Elem(), depth)
	}
	if rv.Type() == timeType {
		return Node{Kind: KindString, Text: rv.Interface().(time.Time).Format(time.RFC3339Nano)}
	}

	switch rv.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return Node{Kind: KindScalar, Scalar: rv.Interface()}

	case reflect.String:
		return Node{Kind: KindString, Text: rv.String()}

	case reflect.Slice:
		if rv.IsNil() {
			return Node{Kind: KindNull}
		}
		fallthrough
	case reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return Node{Kind: KindBytes, Size: rv.Len()}
		}
		items := make([]Node, rv.Len())
		for i := range items {
			items[i] = b.build(rv.Index(i), depth+1)
		}
		return Node{Kind: KindSequence, Items: items, Size: len(items)}

	case reflect.Map:
		if rv.IsNil() {
			return Node{Kind: KindNull}
		}
		fields := make([]Field, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			fields = append(fields, Field{
				Key:   fmt.Sprint(iter.Key().Interface()),
				Value: b.build(iter.Value(), depth+1),
			})
		}
		sort.Slice(fields, func(i, j int) bool { return fields[i].Key < fields[j].Key })
		return Node{Kind: KindMapping, Fields: fields}

	case reflect.Struct:
		return b.buildStruct(rv, depth)

	default:
		return Node{Kind: KindOpaque, Text: rv.Type().String()}
	}
}

// buildStruct maps exported fields by their json name.
func (b *builder) buildStruct(rv reflect.Value, depth int) Node {
	t := rv.Type()
	fields := make([]Field, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		name := sf.Name
		if tag, ok := sf.Tag.Lookup("json"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		fields = append(fields, Field{Key: name, Value: b.build(rv.Field(i), depth+1)})
	}
	return Node{Kind: KindMapping, Fields: fields}
}
