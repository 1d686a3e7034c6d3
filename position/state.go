package position

import (
	"encoding/json"
	"fmt"
	"os"
)

// State 可持久化的仓位快照。volume==0 当且仅当仓位为平。
type State struct {
	Position Signal  `json:"position"`
	Volume   float64 `json:"volume"`
}

func (s State) check() error {
	switch s.Position {
	case Short, Neutral, Long:
	default:
		return fmt.Errorf("position: unknown position %d in state", s.Position)
	}
	if s.Position == Neutral && s.Volume != 0 {
		return fmt.Errorf("position: flat state carries volume %g", s.Volume)
	}
	if s.Position != Neutral && s.Volume <= 0 {
		return fmt.Errorf("position: held state carries volume %g", s.Volume)
	}
	return nil
}

// SaveState 将仓位状态写入文件（先写临时文件再改名）。
func SaveState(path string, s State) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal position state: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("save position state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("save position state: %w", err)
	}
	return nil
}

// LoadState 从文件恢复仓位状态。文件不存在时返回平仓状态。
func LoadState(path string) (State, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("load position state: %w", err)
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, fmt.Errorf("decode position state: %w", err)
	}
	if err := s.check(); err != nil {
		return State{}, err
	}
	return s, nil
}
