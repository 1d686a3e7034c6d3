package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher 监视单个文件（配置或凭证）的写入与轮换。回调在冷却
// 间隔内最多触发一次，凭证轮换工具常以改名落盘。
type Watcher struct {
	Path     string
	Cooldown time.Duration
}

// Start 阻塞监听直到上下文取消。文件所在目录被加入监听，
// 以覆盖先写临时文件再改名的轮换方式。
func (w Watcher) Start(ctx context.Context, onChange func()) error {
	if w.Cooldown <= 0 {
		w.Cooldown = 2 * time.Second
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(filepath.Dir(w.Path)); err != nil {
		return err
	}

	target := filepath.Clean(w.Path)
	var lastFired time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if time.Since(lastFired) < w.Cooldown {
				continue
			}
			lastFired = time.Now()
			if onChange != nil {
				onChange()
			}
		case _, ok := <-fw.Errors:
			if !ok {
				return nil
			}
		}
	}
}
