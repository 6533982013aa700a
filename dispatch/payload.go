package dispatch

import (
	"reflect"

	"github.com/ceyewan/courier/clog"
	"github.com/ceyewan/courier/mapper"
	"github.com/ceyewan/courier/xerrors"
)

// cacheEncoded JSON 响应以解码后的结构经 serializer 存入缓存，其余情况存原始响应体
func (e *Endpoint[A, T]) cacheEncoded() bool {
	return e.spec.Payload == PayloadJSON && e.kind != resultText
}

// complete 处理成功响应：解码、写回缓存、映射
func (e *Endpoint[A, T]) complete(inv *invocation, body []byte) (T, error) {
	var zero T
	if e.kind == resultText {
		e.store(inv, body)
		return asText[T](body), nil
	}

	decoded, err := e.decode(body)
	if err != nil {
		return zero, err
	}

	if e.spec.Cache {
		data := body
		if e.cacheEncoded() {
			if data, err = e.client.serializer.Marshal(decoded); err != nil {
				inv.logger.WarnContext(inv.ctx, "cache encode failed", clog.Error(err))
				data = nil
			}
		}
		e.store(inv, data)
	}
	return e.shape(decoded)
}

// store 写回缓存，失败只记录日志
func (e *Endpoint[A, T]) store(inv *invocation, data []byte) {
	if !e.spec.Cache || data == nil {
		return
	}
	if err := e.client.cache.Set(inv.ctx, inv.key, data, e.spec.CacheTTL); err != nil {
		inv.logger.WarnContext(inv.ctx, "cache write failed", clog.String("key", inv.key), clog.Error(err))
		return
	}
	inv.logger.DebugContext(inv.ctx, "response cached",
		clog.String("key", inv.key), clog.Duration("ttl", e.spec.CacheTTL))
}

// fromCache 还原缓存中的响应
func (e *Endpoint[A, T]) fromCache(data []byte) (T, error) {
	if e.kind == resultText {
		return asText[T](data), nil
	}
	if !e.cacheEncoded() {
		decoded, err := e.decode(data)
		if err != nil {
			var zero T
			return zero, err
		}
		return e.shape(decoded)
	}

	var decoded any
	if err := e.client.serializer.Unmarshal(data, &decoded); err != nil {
		var zero T
		return zero, xerrors.Wrap(err, "decode cached response")
	}
	return e.shape(decoded)
}

// decode 按响应格式解码：JSON 为通用值，XML 为元素树，Text 为字符串
func (e *Endpoint[A, T]) decode(body []byte) (any, error) {
	switch e.spec.Payload {
	case PayloadXML:
		return mapper.ParseXML(body)
	case PayloadText:
		return string(body), nil
	default:
		return mapper.DecodeJSON(body)
	}
}

// shape 把解码结果转换为 T
func (e *Endpoint[A, T]) shape(decoded any) (T, error) {
	var zero T
	if e.kind == resultRaw {
		if decoded == nil {
			return zero, nil
		}
		return decoded.(T), nil
	}

	if e.spec.Payload == PayloadXML {
		root, _ := decoded.(*mapper.Node)
		if root == nil {
			return zero, &mapper.MappingError{Type: e.spec.Target, Reason: "empty xml document"}
		}
		return mapper.DecodeXML[T](root)
	}
	return mapper.Decode[T](decoded)
}

// asText 把响应体转换为字符串或字节切片类型的 T
func asText[T any](body []byte) T {
	var out T
	v := reflect.ValueOf(&out).Elem()
	if v.Kind() == reflect.String {
		v.SetString(string(body))
	} else {
		v.SetBytes(append([]byte(nil), body...))
	}
	return out
}
