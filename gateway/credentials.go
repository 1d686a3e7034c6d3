package gateway

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"os"
	"sync"
)

// Credentials 保存 API key/secret，支持在会话失效时从文件重新加载。
// 文件格式为两行文本：第一行 key，第二行 base64 编码的 secret。
type Credentials struct {
	mu     sync.Mutex
	path   string
	key    string
	secret []byte
}

// LoadCredentials 从文件读取 key/secret 并解码 secret。
func LoadCredentials(path string) (*Credentials, error) {
	c := &Credentials{path: path}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload 重新读取凭证文件（例如密钥轮换或会话过期后）。
func (c *Credentials) Reload() error {
	f, err := os.Open(c.path)
	if err != nil {
		return fmt.Errorf("open credentials: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines []string
	for scanner.Scan() && len(lines) < 2 {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read credentials: %w", err)
	}
	if len(lines) < 2 {
		return fmt.Errorf("credentials file %s: want 2 lines, got %d", c.path, len(lines))
	}
	secret, err := base64.StdEncoding.DecodeString(lines[1])
	if err != nil {
		return fmt.Errorf("decode secret: %w", err)
	}

	c.mu.Lock()
	c.key = lines[0]
	c.secret = secret
	c.mu.Unlock()
	return nil
}

// Pair 返回当前 key 和解码后的 secret。
func (c *Credentials) Pair() (string, []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.key, c.secret
}

// NewStaticCredentials 直接以内存值构造凭证，测试与模拟环境使用。
func NewStaticCredentials(key string, secret []byte) *Credentials {
	return &Credentials{key: key, secret: secret}
}
