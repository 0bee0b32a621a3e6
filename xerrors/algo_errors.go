package xerrors

var (
	// ErrEmptyData 输入数据为空。
	ErrEmptyData = New(ErrInvalidArg, 400001, "empty data", "input data must not be empty", nil)
	// ErrInvalidInput 输入格式错误。
	ErrInvalidInput = New(ErrInvalidArg, 400002, "invalid input", "check your input parameters", nil)
	// ErrZeroVariance 方差为零。
	ErrZeroVariance = New(ErrInvalidArg, 400003, "zero variance", "variance is zero, cannot proceed with calculation", nil)
	// ErrInvalidOptionType 无效的期权类型。
	ErrInvalidOptionType = New(ErrInvalidArg, 400004, "invalid option type", "supported types: call, put", nil)
	// ErrInvalidConfig 配置错误。
	ErrInvalidConfig = New(ErrInvalidArg, 400005, "invalid config", "check configuration values", nil)
	// ErrMissingVolatility 定价需要波动率但合约未提供。
	ErrMissingVolatility = New(ErrInvalidArg, 400020, "volatility required", "volatility must be set for this pricing method", nil)
	// ErrInvalidBarrierType 无法识别的障碍类型。
	ErrInvalidBarrierType = New(ErrInvalidArg, 400021, "invalid barrier type", "supported types: knock_out, knock_in", nil)
	// ErrExpiredContract 合约到期日不在未来。
	ErrExpiredContract = New(ErrInvalidArg, 400022, "option must have future expiration date", "expiration must be strictly after now", nil)
	// ErrInvalidSimulation 模拟次数或步数非法。
	ErrInvalidSimulation = New(ErrInvalidArg, 400023, "invalid simulation parameters", "num_simulations and num_steps must be positive", nil)
	// ErrInvalidPayoffStyle 无法识别的收益类型。
	ErrInvalidPayoffStyle = New(ErrInvalidArg, 400024, "invalid option style", "supported styles: european, asian, barrier", nil)
	// ErrMarketDataUnavailable 行情源无法提供数据。
	ErrMarketDataUnavailable = New(ErrUnavailable, 503001, "market data unavailable", "provider returned no data", nil)
	// ErrCircuitOpen 行情源熔断中，请求被直接拒绝。
	ErrCircuitOpen = New(ErrUnavailable, 503002, "market data circuit open", "upstream failing, retry later", nil)
	// ErrNotImplemented 功能尚未实现。
	ErrNotImplemented = New(ErrTypeNotImplemented, 501001, "not implemented", "feature is not implemented", nil)
)
