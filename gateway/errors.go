package gateway

import (
	"encoding/json"
	"fmt"
	"strings"
)

// 交易所已知的良性错误：调用方有对应的恢复逻辑，不作为致命错误抛出。
var benignErrors = []string{
	"EService:Unavailable",
	"EOrder:Unknown order",
	"EService:Busy",
	"EGeneral:Invalid arguments:volume",
}

const rateLimitError = "EAPI:Rate limit exceeded"

// APIError 携带私有请求失败的完整上下文，便于人工排查。
type APIError struct {
	Method   string
	Errors   []string
	Response json.RawMessage
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Method, strings.Join(e.Errors, "; "))
}

// Benign 判断错误是否全部落在已知良性集合内。
func (e *APIError) Benign() bool {
	if len(e.Errors) == 0 {
		return false
	}
	for _, msg := range e.Errors {
		if !isBenign(msg) {
			return false
		}
	}
	return true
}

func isBenign(msg string) bool {
	for _, known := range benignErrors {
		if strings.Contains(msg, known) {
			return true
		}
	}
	return false
}

func isRateLimited(errs []string) bool {
	for _, msg := range errs {
		if strings.Contains(msg, rateLimitError) {
			return true
		}
	}
	return false
}

// IsBenignAPIError 便于调用方在类型断言之外做快捷判断。
func IsBenignAPIError(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.Benign()
}
