package gateway

import (
	"bytes"
	"fmt"
	"strconv"
)

// Float 解码交易所以字符串编码的数值字段（如 "0.00100000"）。
type Float float64

func (f *Float) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("parse numeric field %q: %w", b, err)
	}
	*f = Float(v)
	return nil
}

func (f Float) Value() float64 { return float64(f) }
