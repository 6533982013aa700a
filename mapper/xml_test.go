package mapper

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type author struct {
	Name string `xml:"name"`
}

type book struct {
	ID      int      `xml:"id,attr"`
	Title   string   `xml:"title"`
	Price   float64  `xml:"price"`
	Author  *author  `xml:"author"`
	Tags    []string `xml:"tags"`
	InStock bool     `map:"stock"`
}

const catalog = `<?xml version="1.0"?>
<catalog>
	<book id="1" stock="true">
		<title>Go</title>
		<price>12.5</price>
		<author><name>Rob</name></author>
		<tags><tag>lang</tag><tag>systems</tag></tags>
	</book>
	<book id="2">
		<title>Rust</title>
		<price>20</price>
	</book>
</catalog>`

func TestParseXML(t *testing.T) {
	root, err := ParseXML([]byte(catalog))
	require.NoError(t, err)
	assert.Equal(t, "catalog", root.Name)
	require.Len(t, root.Children, 2)
	assert.True(t, root.IsList())

	first := root.Children[0]
	assert.Equal(t, "1", first.Attrs["id"])
	assert.Equal(t, "Go", first.Child("title").Text)
	assert.Len(t, first.Child("tags").ChildrenNamed("tag"), 2)
	assert.Nil(t, first.Child("missing"))

	_, err = ParseXML([]byte("<a><b></a>"))
	assert.ErrorIs(t, err, ErrMapping)
	_, err = ParseXML(nil)
	assert.ErrorIs(t, err, ErrMapping)
}

func TestDecodeXMLList(t *testing.T) {
	root, err := ParseXML([]byte(catalog))
	require.NoError(t, err)

	books, err := DecodeXML[[]book](root)
	require.NoError(t, err)
	require.Len(t, books, 2)

	assert.Equal(t, book{
		ID: 1, Title: "Go", Price: 12.5,
		Author:  &author{Name: "Rob"},
		Tags:    []string{"lang", "systems"},
		InStock: true,
	}, books[0])
	assert.Equal(t, book{ID: 2, Title: "Rust", Price: 20}, books[1])

	v, err := MapXML(reflect.TypeFor[book](), root)
	require.NoError(t, err)
	assert.Len(t, v.([]book), 2)

	_, err = DecodeXML[book](root)
	assert.ErrorIs(t, err, ErrMapping)
}

func TestDecodeXMLSingle(t *testing.T) {
	root, err := ParseXML([]byte(`<book id="3"><title>One</title><title>Ignored</title><extra>x</extra></book>`))
	require.NoError(t, err)
	assert.False(t, root.IsList())

	b, err := DecodeXML[book](root)
	require.NoError(t, err)
	assert.Equal(t, book{ID: 3, Title: "One"}, b)

	list, err := DecodeXML[[]*book](root)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 3, list[0].ID)

	text, err := DecodeXML[string](root)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestDecodeXMLRepeatedFieldChildren(t *testing.T) {
	type tagged struct {
		Name string   `xml:"name,attr"`
		Tags []string `xml:"tag"`
	}
	root, err := ParseXML([]byte(`<user name="ann"><tag>a</tag><tag>b</tag></user>`))
	require.NoError(t, err)
	require.True(t, root.IsList())

	u, err := DecodeXML[tagged](root)
	require.NoError(t, err)
	assert.Equal(t, tagged{Name: "ann", Tags: []string{"a", "b"}}, u)

	list, err := DecodeXML[[]tagged](root)
	require.NoError(t, err)
	assert.Equal(t, []tagged{{Name: "ann", Tags: []string{"a", "b"}}}, list)

	v, err := MapXML(reflect.TypeFor[tagged](), root)
	require.NoError(t, err)
	assert.Equal(t, tagged{Name: "ann", Tags: []string{"a", "b"}}, v)
}

func TestDecodeXMLErrors(t *testing.T) {
	type strict struct {
		Code string `map:"code,required"`
	}

	root, err := ParseXML([]byte(`<book id="x"/>`))
	require.NoError(t, err)
	_, err = DecodeXML[book](root)
	assert.ErrorIs(t, err, ErrMapping)

	_, err = DecodeXML[strict](root)
	assert.ErrorIs(t, err, ErrMapping)

	root, err = ParseXML([]byte(`<r code="A1"/>`))
	require.NoError(t, err)
	s, err := DecodeXML[strict](root)
	require.NoError(t, err)
	assert.Equal(t, "A1", s.Code)
}
