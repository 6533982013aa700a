package mapper

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type address struct {
	City string `json:"city"`
	Zip  string `json:"zip"`
}

type user struct {
	ID      int64          `json:"id"`
	Name    string         `json:"name,omitempty"`
	Email   string         `map:"email,required"`
	Score   float64        `json:"score"`
	Address *address       `json:"address"`
	Tags    []string       `json:"tags"`
	Meta    map[string]any `json:"meta"`
	Display string         `map:"-"`
	Secret  string         `json:"-"`
}

func (u *user) AfterMap() error {
	if u.ID < 0 {
		return errors.New("negative id")
	}
	u.Display = u.Name + " <" + u.Email + ">"
	return nil
}

func decode(t *testing.T, body string) any {
	t.Helper()
	data, err := DecodeJSON([]byte(body))
	require.NoError(t, err)
	return data
}

func TestDecodeObject(t *testing.T) {
	data := decode(t, `{
		"id": 7, "name": "ann", "email": "ann@example.com", "score": 9,
		"address": {"city": "Oslo", "extra": 1},
		"tags": ["a", "b"], "meta": {"k": 1},
		"Secret": "x", "Display": "ignored", "unknown": true
	}`)

	u, err := Decode[user](data)
	require.NoError(t, err)
	assert.Equal(t, int64(7), u.ID)
	assert.Equal(t, "ann", u.Name)
	assert.Equal(t, 9.0, u.Score)
	require.NotNil(t, u.Address)
	assert.Equal(t, "Oslo", u.Address.City)
	assert.Equal(t, []string{"a", "b"}, u.Tags)
	assert.Equal(t, json.Number("1"), u.Meta["k"])
	assert.Empty(t, u.Secret)
	assert.Equal(t, "ann <ann@example.com>", u.Display, "derived by the finalizer, not the payload")
}

func TestDecodeList(t *testing.T) {
	data := decode(t, `[{"email":"a"},{"email":"b"},{"email":"c"}]`)

	users, err := Decode[[]user](data)
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "b", users[1].Email)

	ptrs, err := Decode[[]*user](data)
	require.NoError(t, err)
	assert.Equal(t, "c", ptrs[2].Email)

	v, err := Map(reflect.TypeFor[user](), data)
	require.NoError(t, err)
	assert.Len(t, v.([]user), 3)

	// 单个对象解码到切片
	one, err := Decode[[]user](decode(t, `{"email":"solo"}`))
	require.NoError(t, err)
	assert.Equal(t, []user{{Email: "solo", Display: " <solo>"}}, one)
}

func TestDecodeTolerance(t *testing.T) {
	u, err := Decode[user](decode(t, `{"email":"e","address":null,"name":null}`))
	require.NoError(t, err)
	assert.Nil(t, u.Address)
	assert.Empty(t, u.Name)
	assert.Zero(t, u.ID)

	v, err := Map(reflect.TypeFor[address](), decode(t, `{"zip":"0150"}`))
	require.NoError(t, err)
	assert.Equal(t, address{Zip: "0150"}, v)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		path string
	}{
		{name: "required missing", body: `{"id":1}`, path: "email"},
		{name: "string into int", body: `{"id":"7","email":"e"}`, path: "id"},
		{name: "fraction into int", body: `{"id":7.5,"email":"e"}`, path: "id"},
		{name: "number into string", body: `{"name":1,"email":"e"}`, path: "name"},
		{name: "scalar into struct", body: `{"address":"Oslo","email":"e"}`, path: "address"},
		{name: "nested element", body: `{"tags":["a",2],"email":"e"}`, path: "tags[1]"},
		{name: "finalizer", body: `{"id":-1,"email":"e"}`, path: ""},
		{name: "array into object", body: `[{"email":"e"}]`, path: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode[user](decode(t, tt.body))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMapping)

			var me *MappingError
			require.True(t, errors.As(err, &me))
			assert.Equal(t, tt.path, me.Path)
			assert.Equal(t, "MAPPING", me.ErrorCode())
		})
	}
}

func TestNumericConversions(t *testing.T) {
	type numbers struct {
		Small int8      `json:"small"`
		Count uint      `json:"count"`
		Ratio float32   `json:"ratio"`
		Whole int       `json:"whole"`
		At    time.Time `json:"at"`
	}

	n, err := Decode[numbers](decode(t, `{"small":-5,"count":3,"ratio":0.5,"whole":2.0,"at":"2024-01-02T03:04:05Z"}`))
	require.NoError(t, err)
	assert.Equal(t, int8(-5), n.Small)
	assert.Equal(t, uint(3), n.Count)
	assert.Equal(t, float32(0.5), n.Ratio)
	assert.Equal(t, 2, n.Whole)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), n.At.UTC())

	_, err = Decode[numbers](decode(t, `{"small":300}`))
	assert.ErrorIs(t, err, ErrMapping)
	_, err = Decode[numbers](decode(t, `{"count":-1}`))
	assert.ErrorIs(t, err, ErrMapping)

	// 非 json.Number 的数值同样可转换
	n, err = Decode[numbers](map[string]any{"small": 4, "ratio": 1.25})
	require.NoError(t, err)
	assert.Equal(t, int8(4), n.Small)
}

func TestDecodeRawAndEmbedded(t *testing.T) {
	data := decode(t, `{"a":[1,2]}`)
	raw, err := Decode[any](data)
	require.NoError(t, err)
	assert.Equal(t, data, raw)

	type base struct {
		ID int `json:"id"`
	}
	type item struct {
		base
		Name string `json:"name"`
	}
	it, err := Decode[item](decode(t, `{"id":3,"name":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, 3, it.ID)
	assert.Equal(t, "x", it.Name)

	empty, err := DecodeJSON([]byte("  "))
	require.NoError(t, err)
	assert.Nil(t, empty)

	_, err = DecodeJSON([]byte("{broken"))
	assert.ErrorIs(t, err, ErrMapping)

	for _, body := range []string{`{"a":1} garbage`, `{"a":1}{"b":2}`, `[1] 2`} {
		_, err = DecodeJSON([]byte(body))
		assert.ErrorIs(t, err, ErrMapping, body)
	}
	padded, err := DecodeJSON([]byte("{\"a\":1}\n\t "))
	require.NoError(t, err)
	assert.Contains(t, padded, "a")
}

func TestRegister(t *testing.T) {
	type node struct {
		Value    int    `json:"value"`
		Children []node `json:"children"`
	}
	require.NoError(t, Register[user]())
	require.NoError(t, Register[[]*node]())

	type dup struct {
		A string `json:"x"`
		B string `map:"x"`
	}
	err := Register[dup]()
	assert.ErrorIs(t, err, ErrMapping)

	tree, err := Decode[node](decode(t, `{"value":1,"children":[{"value":2,"children":[{"value":3}]}]}`))
	require.NoError(t, err)
	assert.Equal(t, 3, tree.Children[0].Children[0].Value)
}
