package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"net/url"
	"strconv"
)

// SignRequest 计算私有请求签名：
// message = path || SHA256(nonce || postdata)，再以解码后的 secret 做
// HMAC-SHA512，结果 base64 编码。必须与交易所的校验逐字节一致。
func SignRequest(path string, secret []byte, nonce int64, form url.Values) string {
	payload := strconv.FormatInt(nonce, 10) + form.Encode()
	digest := sha256.Sum256([]byte(payload))

	message := make([]byte, 0, len(path)+len(digest))
	message = append(message, path...)
	message = append(message, digest[:]...)

	mac := hmac.New(sha512.New, secret)
	mac.Write(message)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
