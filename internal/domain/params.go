package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Ошибки доступа к параметрам.
var (
	// ErrMissingParam — обязательный параметр отсутствует.
	ErrMissingParam = errors.New("missing parameter")

	// ErrParamType — параметр имеет неожиданный тип.
	ErrParamType = errors.New("parameter type mismatch")

	// ErrUnsupportedValue — значение нельзя представить как Value
	// (дробное число, null внутри списка, неизвестный тип).
	ErrUnsupportedValue = errors.New("unsupported parameter value")
)

// ValueKind — тип значения параметра.
type ValueKind uint8

const (
	KindInvalid ValueKind = iota
	KindString
	KindInt
	KindBool
	KindMap
	KindList
)

// String возвращает имя типа.
func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindMap:
		return "map"
	case KindList:
		return "list"
	default:
		return "invalid"
	}
}

// Value — значение параметра: строка, целое, bool, вложенный набор
// параметров или список значений.
//
// Нулевое значение Value невалидно (KindInvalid).
type Value struct {
	kind ValueKind
	s    string
	i    int64
	b    bool
	m    Params
	l    []Value
}

// String создаёт строковое значение.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Int создаёт целочисленное значение.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Bool создаёт булево значение.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Map создаёт вложенный набор параметров.
func Map(m Params) Value {
	if m == nil {
		m = Params{}
	}
	return Value{kind: KindMap, m: m}
}

// List создаёт список значений.
func List(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindList, l: items}
}

// Strings создаёт список строк.
func Strings(items ...string) Value {
	l := make([]Value, len(items))
	for i, s := range items {
		l[i] = String(s)
	}
	return List(l...)
}

// Ints создаёт список целых.
func Ints(items ...int64) Value {
	l := make([]Value, len(items))
	for i, n := range items {
		l[i] = Int(n)
	}
	return List(l...)
}

// Kind возвращает тип значения.
func (v Value) Kind() ValueKind { return v.kind }

// IsValid возвращает false для нулевого Value.
func (v Value) IsValid() bool { return v.kind != KindInvalid }

// AsString возвращает строку, если значение строковое.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsInt возвращает целое, если значение целочисленное.
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }

// AsBool возвращает bool, если значение булево.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsMap возвращает вложенные параметры.
func (v Value) AsMap() (Params, bool) { return v.m, v.kind == KindMap }

// AsList возвращает список значений.
func (v Value) AsList() ([]Value, bool) { return v.l, v.kind == KindList }

// Interface возвращает значение в виде обычных Go-типов
// (string, int64, bool, map[string]any, []any).
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return v.i
	case KindBool:
		return v.b
	case KindMap:
		return v.m.Interface()
	case KindList:
		out := make([]any, len(v.l))
		for i, item := range v.l {
			out[i] = item.Interface()
		}
		return out
	default:
		return nil
	}
}

// Clone возвращает глубокую копию значения.
func (v Value) Clone() Value {
	switch v.kind {
	case KindMap:
		return Value{kind: KindMap, m: v.m.Clone()}
	case KindList:
		l := make([]Value, len(v.l))
		for i, item := range v.l {
			l[i] = item.Clone()
		}
		return Value{kind: KindList, l: l}
	default:
		return v
	}
}

// MarshalJSON реализует json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindInvalid {
		return []byte("null"), nil
	}
	return json.Marshal(v.Interface())
}

// UnmarshalJSON реализует json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	raw, err := decodeRaw(data)
	if err != nil {
		return err
	}
	val, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = val
	return nil
}

// ValueOf преобразует результат json-декодирования (или обычные Go-значения)
// в Value. Дробные числа и null отклоняются.
func ValueOf(raw any) (Value, error) {
	switch x := raw.(type) {
	case Value:
		return x, nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return Value{}, fmt.Errorf("%w: non-integer number %s", ErrUnsupportedValue, x)
		}
		return Int(n), nil
	case float64:
		if x != float64(int64(x)) {
			return Value{}, fmt.Errorf("%w: non-integer number %v", ErrUnsupportedValue, x)
		}
		return Int(int64(x)), nil
	case map[string]any:
		p, err := ParamsOf(x)
		if err != nil {
			return Value{}, err
		}
		return Map(p), nil
	case []any:
		l := make([]Value, 0, len(x))
		for i, item := range x {
			val, err := ValueOf(item)
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			l = append(l, val)
		}
		return List(l...), nil
	case []string:
		return Strings(x...), nil
	case nil:
		return Value{}, fmt.Errorf("%w: null", ErrUnsupportedValue)
	default:
		return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedValue, raw)
	}
}

// Params — набор параметров workflow или шага.
type Params map[string]Value

// ParamsOf строит Params из map[string]any. Ключи со значением nil пропускаются.
func ParamsOf(m map[string]any) (Params, error) {
	p := make(Params, len(m))
	for k, raw := range m {
		if raw == nil {
			continue
		}
		val, err := ValueOf(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		p[k] = val
	}
	return p, nil
}

// UnmarshalJSON реализует json.Unmarshaler.
func (p *Params) UnmarshalJSON(data []byte) error {
	raw, err := decodeRaw(data)
	if err != nil {
		return err
	}
	if raw == nil {
		*p = nil
		return nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: params must be an object", ErrUnsupportedValue)
	}
	parsed, err := ParamsOf(m)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Interface возвращает параметры как map[string]any.
func (p Params) Interface() map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v.Interface()
	}
	return out
}

// Clone возвращает глубокую копию.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v.Clone()
	}
	return out
}

// Keys возвращает отсортированный список ключей.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Has проверяет наличие ключа.
func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// Get возвращает значение по ключу.
func (p Params) Get(key string) (Value, bool) {
	v, ok := p[key]
	return v, ok
}

// String возвращает обязательный строковый параметр.
func (p Params) String(key string) (string, error) {
	v, ok := p[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingParam, key)
	}
	s, ok := v.AsString()
	if !ok {
		return "", typeError(key, KindString, v)
	}
	return s, nil
}

// StringOr возвращает строковый параметр или def, если ключа нет.
func (p Params) StringOr(key, def string) (string, error) {
	if !p.Has(key) {
		return def, nil
	}
	return p.String(key)
}

// Int возвращает обязательный целочисленный параметр.
func (p Params) Int(key string) (int64, error) {
	v, ok := p[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingParam, key)
	}
	n, ok := v.AsInt()
	if !ok {
		return 0, typeError(key, KindInt, v)
	}
	return n, nil
}

// IntOr возвращает целочисленный параметр или def, если ключа нет.
func (p Params) IntOr(key string, def int64) (int64, error) {
	if !p.Has(key) {
		return def, nil
	}
	return p.Int(key)
}

// BoolOr возвращает булев параметр или def, если ключа нет.
func (p Params) BoolOr(key string, def bool) (bool, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	b, ok := v.AsBool()
	if !ok {
		return false, typeError(key, KindBool, v)
	}
	return b, nil
}

// StringMap возвращает вложенный набор строк (например, заголовки).
// Отсутствующий ключ — nil без ошибки.
func (p Params) StringMap(key string) (map[string]string, error) {
	v, ok := p[key]
	if !ok {
		return nil, nil
	}
	m, ok := v.AsMap()
	if !ok {
		return nil, typeError(key, KindMap, v)
	}
	out := make(map[string]string, len(m))
	for k, item := range m {
		s, ok := item.AsString()
		if !ok {
			return nil, typeError(key+"."+k, KindString, item)
		}
		out[k] = s
	}
	return out, nil
}

// StringList возвращает список строк. Отсутствующий ключ — nil без ошибки.
func (p Params) StringList(key string) ([]string, error) {
	v, ok := p[key]
	if !ok {
		return nil, nil
	}
	l, ok := v.AsList()
	if !ok {
		return nil, typeError(key, KindList, v)
	}
	out := make([]string, len(l))
	for i, item := range l {
		s, ok := item.AsString()
		if !ok {
			return nil, typeError(fmt.Sprintf("%s[%d]", key, i), KindString, item)
		}
		out[i] = s
	}
	return out, nil
}

// IntList возвращает список целых. Отсутствующий ключ — nil без ошибки.
func (p Params) IntList(key string) ([]int64, error) {
	v, ok := p[key]
	if !ok {
		return nil, nil
	}
	l, ok := v.AsList()
	if !ok {
		return nil, typeError(key, KindList, v)
	}
	out := make([]int64, len(l))
	for i, item := range l {
		n, ok := item.AsInt()
		if !ok {
			return nil, typeError(fmt.Sprintf("%s[%d]", key, i), KindInt, item)
		}
		out[i] = n
	}
	return out, nil
}

func typeError(key string, want ValueKind, got Value) error {
	return fmt.Errorf("%w: %s: expected %s, got %s", ErrParamType, key, want, got.Kind())
}

// decodeRaw декодирует JSON с сохранением чисел как json.Number.
func decodeRaw(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}
