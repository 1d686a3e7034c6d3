package ident

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Store 持久化分配器状态。id 发放前状态必须先落盘，
// 文件即唯一事实来源。
type Store interface {
	Load() (value int64, exists bool, err error)
	Save(value int64) error
}

// FileStore 以单个整数文本文件持久化状态。
type FileStore struct {
	Path string
}

func (s *FileStore) Load() (int64, bool, error) {
	data, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("load id state: %w", err)
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupted id state %s: %w", s.Path, err)
	}
	return v, true, nil
}

func (s *FileStore) Save(value int64) error {
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.FormatInt(value, 10)), 0o644); err != nil {
		return fmt.Errorf("save id state: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("save id state: %w", err)
	}
	return nil
}

// NewFileStore 确保父目录存在后返回文件存储。
func NewFileStore(path string) (*FileStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
	}
	return &FileStore{Path: path}, nil
}
