package config

// ValidateParams 额外验证执行参数的取值范围。
func ValidateParams(cfg AppConfig) error {
	if cfg.Executor.MaxIterations < 0 {
		return ErrInvalid("executor.maxIterations must be >= 0")
	}
	if cfg.Executor.PollMs < 0 {
		return ErrInvalid("executor.pollMs must be >= 0")
	}
	if cfg.Signals.Buffer < 0 {
		return ErrInvalid("signals.buffer must be >= 0")
	}
	return nil
}

// ErrInvalid 用于参数验证错误。
type ErrInvalid string

func (e ErrInvalid) Error() string { return string(e) }
