package mapper

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"reflect"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

// Node XML 元素树节点
type Node struct {
	Name     string
	Attrs    map[string]string
	Text     string // 元素直接包含的文本，已去除首尾空白
	Children []*Node
}

// Child 返回第一个名为 name 的子元素
func (n *Node) Child(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ChildrenNamed 返回所有名为 name 的子元素
func (n *Node) ChildrenNamed(name string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// IsList 根元素包含多个同名子元素时视为列表
func (n *Node) IsList() bool {
	if len(n.Children) < 2 {
		return false
	}
	for _, c := range n.Children[1:] {
		if c.Name != n.Children[0].Name {
			return false
		}
	}
	return true
}

// ParseXML 解析 XML 文档为元素树；不处理 DTD 与外部实体
func ParseXML(data []byte) (*Node, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	var (
		root  *Node
		stack []*Node
		texts []*strings.Builder
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &MappingError{Reason: "invalid xml body", Err: err}
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{Name: t.Name.Local, Attrs: make(map[string]string, len(t.Attr))}
			for _, a := range t.Attr {
				n.Attrs[a.Name.Local] = a.Value
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, &MappingError{Reason: "xml document has multiple root elements"}
				}
				root = n
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			}
			stack = append(stack, n)
			texts = append(texts, &strings.Builder{})
		case xml.EndElement:
			last := len(stack) - 1
			stack[last].Text = strings.TrimSpace(texts[last].String())
			stack = stack[:last]
			texts = texts[:last]
		case xml.CharData:
			if len(stack) > 0 {
				texts[len(texts)-1].Write(t)
			}
		}
	}
	if root == nil {
		return nil, &MappingError{Reason: "empty xml document"}
	}
	return root, nil
}

// MapXML 将元素树映射为 t 的实例；根元素为列表时返回 []t，每个子元素一个实例
func MapXML(t reflect.Type, root *Node) (any, error) {
	if listFor(t, root) {
		out := reflect.MakeSlice(reflect.SliceOf(t), len(root.Children), len(root.Children))
		for i, child := range root.Children {
			if err := assignNode(out.Index(i), child, indexPath("", i)); err != nil {
				return nil, err
			}
		}
		return out.Interface(), nil
	}
	v := reflect.New(t).Elem()
	if err := assignNode(v, root, ""); err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

// DecodeXML 将元素树映射为 T
//
// 根元素的子元素全部同名时视为列表，除非目标结构体有字段直接接收该名称的子元素，
// 如 <user><tag/><tag/></user> 映射到带 `xml:"tag"` 切片字段的 user。
//
// T 为切片时：根元素是列表则每个子元素一项，否则根元素本身作为唯一一项。
// T 是结构体而根元素是列表时返回 MappingError。
func DecodeXML[T any](root *Node) (T, error) {
	var zero T
	t := reflect.TypeFor[T]()
	v := reflect.New(t).Elem()
	list := listFor(t, root)

	if t.Kind() == reflect.Slice && t.Elem().Kind() != reflect.Uint8 {
		nodes := []*Node{root}
		if list {
			nodes = root.Children
		}
		out := reflect.MakeSlice(t, len(nodes), len(nodes))
		for i, n := range nodes {
			if err := assignNode(out.Index(i), n, indexPath("", i)); err != nil {
				return zero, err
			}
		}
		v.Set(out)
		return v.Interface().(T), nil
	}

	if list && targetOf(t) != nil {
		return zero, &MappingError{Type: t, Reason: "xml document holds a list of <" + root.Children[0].Name + ">, decode into a slice"}
	}
	if err := assignNode(v, root, ""); err != nil {
		return zero, err
	}
	return v.Interface().(T), nil
}

// listFor 根元素是列表，且 t 的目标结构体没有以子元素名命名的字段
func listFor(t reflect.Type, root *Node) bool {
	if !root.IsList() {
		return false
	}
	target := targetOf(t)
	if target == nil {
		return true
	}
	s, err := schemaOf(target)
	if err != nil {
		return true
	}
	name := root.Children[0].Name
	for _, f := range s.fields {
		if f.xmlName == name {
			return false
		}
	}
	return true
}

// assignNode 将一个元素写入 v：结构体按 schema 映射，标量取元素文本
func assignNode(v reflect.Value, n *Node, path string) error {
	t := v.Type()
	if t.Kind() == reflect.Pointer {
		elem := reflect.New(t.Elem())
		if err := assignNode(elem.Elem(), n, path); err != nil {
			return err
		}
		v.Set(elem)
		return nil
	}
	if t.Kind() == reflect.Struct && t != timeType {
		return mapElement(v, n, path)
	}
	return assignText(v, n.Text, path)
}

// mapElement 字段依次从属性、同名子元素解析
func mapElement(v reflect.Value, n *Node, path string) error {
	s, err := schemaOf(v.Type())
	if err != nil {
		return err
	}
	for _, f := range s.fields {
		fv := v.FieldByIndex(f.index)
		fpath := joinPath(path, f.xmlName)

		if attr, ok := n.Attrs[f.xmlName]; ok {
			if err := assignText(fv, attr, fpath); err != nil {
				return err
			}
			continue
		}

		children := n.ChildrenNamed(f.xmlName)
		if len(children) == 0 {
			if f.required {
				return &MappingError{Path: fpath, Type: v.Type(), Reason: "required field missing"}
			}
			continue
		}
		if err := assignChildren(fv, children, fpath); err != nil {
			return err
		}
	}
	return finalize(v, path)
}

func assignChildren(v reflect.Value, children []*Node, path string) error {
	t := v.Type()
	if t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Slice {
		elem := reflect.New(t.Elem())
		if err := assignChildren(elem.Elem(), children, path); err != nil {
			return err
		}
		v.Set(elem)
		return nil
	}
	if t.Kind() != reflect.Slice || t.Elem().Kind() == reflect.Uint8 {
		return assignNode(v, children[0], path)
	}

	// <tags><tag/><tag/></tags> 形式的包装元素
	items := children
	if len(children) == 1 && isWrapper(children[0]) {
		items = children[0].Children
	}
	out := reflect.MakeSlice(t, len(items), len(items))
	for i, item := range items {
		if err := assignNode(out.Index(i), item, indexPath(path, i)); err != nil {
			return err
		}
	}
	v.Set(out)
	return nil
}

func isWrapper(n *Node) bool {
	if len(n.Attrs) > 0 || n.Text != "" || len(n.Children) == 0 {
		return false
	}
	for _, c := range n.Children[1:] {
		if c.Name != n.Children[0].Name {
			return false
		}
	}
	return true
}

// assignText 按字段类型解析文本
func assignText(v reflect.Value, text string, path string) error {
	t := v.Type()
	fail := func(err error) error {
		return &MappingError{Path: path, Type: t, Reason: "cannot parse " + strconv.Quote(text), Err: err}
	}

	switch {
	case t == timeType:
		tm, err := cast.ToTimeE(text)
		if err != nil {
			return fail(err)
		}
		v.Set(reflect.ValueOf(tm))
		return nil
	case t.Kind() == reflect.Pointer:
		elem := reflect.New(t.Elem())
		if err := assignText(elem.Elem(), text, path); err != nil {
			return err
		}
		v.Set(elem)
		return nil
	case t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8:
		v.SetBytes([]byte(text))
		return nil
	case t.Kind() == reflect.Interface && reflect.TypeFor[string]().AssignableTo(t):
		v.Set(reflect.ValueOf(text))
		return nil
	}

	switch t.Kind() {
	case reflect.String:
		v.SetString(text)
	case reflect.Bool:
		b, err := cast.ToBoolE(text)
		if err != nil {
			return fail(err)
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return fail(err)
		}
		if v.OverflowInt(n) {
			return fail(errOverflow)
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(text, 10, 64)
		if err != nil {
			return fail(err)
		}
		if v.OverflowUint(n) {
			return fail(errOverflow)
		}
		v.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := cast.ToFloat64E(text)
		if err != nil {
			return fail(err)
		}
		v.SetFloat(f)
	default:
		return &MappingError{Path: path, Type: t, Reason: "unsupported field kind " + t.Kind().String() + " for xml text"}
	}
	return nil
}
