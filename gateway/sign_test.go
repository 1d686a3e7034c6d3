package gateway

import (
	"encoding/base64"
	"net/url"
	"testing"
)

// 交易所文档中公开的签名示例，逐字节比对。
func TestSignRequestKnownVector(t *testing.T) {
	secret, err := base64.StdEncoding.DecodeString(
		"kQH5HW/8p1uGOVjbgWA7FunAmGO8lsSUXNsu3eow76sz84Q18fWxnyRzBHCd3pd5nE9qa99HAZtuZuj6F1huXg==")
	if err != nil {
		t.Fatalf("decode secret: %v", err)
	}

	form := url.Values{}
	form.Set("nonce", "1616492376594")
	form.Set("ordertype", "limit")
	form.Set("pair", "XBTUSD")
	form.Set("price", "37500")
	form.Set("type", "buy")
	form.Set("volume", "1.25")

	got := SignRequest("/0/private/AddOrder", secret, 1616492376594, form)
	want := "4/dpxb3iT4tp/ZCVEwSnEsLxx0bqyhLpdfOpc6fn7OR8+UClSV5n9E6aSS8MPtnRfp32bAb0nmbRn6H8ndwLUQ=="
	if got != want {
		t.Fatalf("signature mismatch:\n got %s\nwant %s", got, want)
	}
}

func TestSignRequestNonceChangesSignature(t *testing.T) {
	secret := []byte("not-a-real-secret")
	form := url.Values{}
	form.Set("nonce", "1")

	a := SignRequest("/0/private/Balance", secret, 1, form)
	form.Set("nonce", "2")
	b := SignRequest("/0/private/Balance", secret, 2, form)
	if a == b {
		t.Fatal("different nonces produced identical signatures")
	}

	raw, err := base64.StdEncoding.DecodeString(a)
	if err != nil {
		t.Fatalf("signature is not valid base64: %v", err)
	}
	if len(raw) != 64 {
		t.Fatalf("HMAC-SHA512 digest length = %d, want 64", len(raw))
	}
}
