package cache

import (
	"crypto/md5"
	"encoding/hex"

	"github.com/goccy/go-json"

	"github.com/ceyewan/courier/xerrors"
)

// Fingerprint 计算请求的缓存 key：{"params":...,"url":...} 规范 JSON（map 键有序）的 MD5
//
// 逻辑上相同的请求得到相同的 key，与 params 的构造顺序无关。
func Fingerprint(url string, params map[string]any) (string, error) {
	canonical, err := json.Marshal(map[string]any{
		"url":    url,
		"params": params,
	})
	if err != nil {
		return "", xerrors.Wrap(err, "cache: fingerprint")
	}
	sum := md5.Sum(canonical)
	return hex.EncodeToString(sum[:]), nil
}
