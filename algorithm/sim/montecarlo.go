package sim

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math"
	"math/rand/v2"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"gonum.org/v1/gonum/stat"

	"github.com/wyfcoding/optionpricer/algorithm/finance"
	"github.com/wyfcoding/optionpricer/algorithm/types"
	"github.com/wyfcoding/optionpricer/xerrors"
)

const (
	// DefaultSteps 每年 252 个交易日观测点.
	DefaultSteps = 252
	// DefaultChunkSize 每个随机数流负责的路径数.
	DefaultChunkSize = 4096

	z95 = 1.96
	// seedStream PCG 第二个种子字，固定以便种子可复现.
	seedStream = 0x9e3779b97f4a7c15
)

// MonteCarloResult 模拟定价结果.
type MonteCarloResult struct {
	ConfidenceInterval95 [2]float64    `json:"confidence_interval_95"`
	Price                float64       `json:"price"`
	StandardError        float64       `json:"standard_error"`
	NumSimulations       int           `json:"num_simulations"`
	SimulationTime       time.Duration `json:"simulation_time"` // 仅用于诊断
}

// Option 引擎构造选项.
type Option func(*MonteCarloEngine)

// WithSeed 固定主随机源种子，相同种子的调用序列结果完全一致.
func WithSeed(seed uint64) Option {
	return func(e *MonteCarloEngine) {
		e.rng = rand.New(rand.NewPCG(seed, seedStream))
	}
}

// WithWorkers 并行生成路径的协程上限，<=0 时使用 GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(e *MonteCarloEngine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithChunkSize 每个分块的路径数.
func WithChunkSize(n int) Option {
	return func(e *MonteCarloEngine) {
		if n > 0 {
			e.chunkSize = n
		}
	}
}

// MonteCarloEngine 蒙特卡洛定价引擎.
// 主随机源归引擎所有；每次定价先按分块顺序从主随机源取子种子，再并行生成路径，
// 因此结果与协程数无关。同一引擎上的调用串行执行.
type MonteCarloEngine struct {
	rng       *rand.Rand
	workers   int
	chunkSize int
	mu        sync.Mutex
}

// NewMonteCarloEngine 创建引擎，未指定种子时从 crypto/rand 取种子.
func NewMonteCarloEngine(opts ...Option) *MonteCarloEngine {
	e := &MonteCarloEngine{
		workers:   runtime.GOMAXPROCS(0),
		chunkSize: DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewPCG(cryptoSeed(), cryptoSeed()))
	}
	return e
}

func cryptoSeed() uint64 {
	var b [8]byte
	if _, err := cryptorand.Read(b[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}

// PriceEuropean 欧式期权.
func (e *MonteCarloEngine) PriceEuropean(c finance.Contract, numSimulations, numSteps int) (MonteCarloResult, error) {
	return e.Price(c, European(), numSimulations, numSteps)
}

// PriceAsian 算术平均亚式期权.
func (e *MonteCarloEngine) PriceAsian(c finance.Contract, numSimulations, numSteps int) (MonteCarloResult, error) {
	return e.Price(c, Asian(), numSimulations, numSteps)
}

// PriceBarrier 障碍期权，看涨按向上、看跌按向下判断触碰.
func (e *MonteCarloEngine) PriceBarrier(c finance.Contract, barrier float64, bt types.BarrierType, numSimulations, numSteps int) (MonteCarloResult, error) {
	return e.Price(c, Barrier(barrier, bt), numSimulations, numSteps)
}

// PriceBarrierDirectional 障碍期权，触碰方向独立于期权类型.
func (e *MonteCarloEngine) PriceBarrierDirectional(c finance.Contract, barrier float64, bt types.BarrierType, dir types.BarrierDirection, numSimulations, numSteps int) (MonteCarloResult, error) {
	return e.Price(c, BarrierDirectional(barrier, bt, dir), numSimulations, numSteps)
}

// Price 按收益结构定价：生成路径、计算收益、贴现并汇总.
func (e *MonteCarloEngine) Price(c finance.Contract, spec Spec, numSimulations, numSteps int) (MonteCarloResult, error) {
	vol, ok := c.Volatility()
	if !ok {
		return MonteCarloResult{}, xerrors.ErrMissingVolatility.WithContext("symbol", c.Symbol())
	}
	if numSimulations <= 0 || numSteps <= 0 {
		return MonteCarloResult{}, xerrors.ErrInvalidSimulation.WithDetail("num_simulations=%d num_steps=%d", numSimulations, numSteps)
	}
	if err := spec.Validate(); err != nil {
		return MonteCarloResult{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	payoff := spec.payoff(c.OptionType(), c.Strike())
	t := c.TimeToExpiration()

	// 已到期：路径恒为 S0，无需贴现，也没有抽样误差
	if t <= 0 {
		flat := make([]float64, numSteps+1)
		for i := range flat {
			flat[i] = c.StockPrice()
		}
		p := payoff(flat)
		return MonteCarloResult{
			Price:                p,
			ConfidenceInterval95: [2]float64{p, p},
			NumSimulations:       numSimulations,
			SimulationTime:       time.Since(start),
		}, nil
	}

	gbm := NewGeometricBrownianMotion(c.StockPrice(), c.RiskFreeRate(), vol, t/float64(numSteps))
	discount := math.Exp(-c.RiskFreeRate() * t)
	discounted := e.simulate(gbm, payoff, discount, numSimulations, numSteps)

	mean, std := stat.PopMeanStdDev(discounted, nil)
	se := std / math.Sqrt(float64(numSimulations))
	return MonteCarloResult{
		Price:                mean,
		StandardError:        se,
		ConfidenceInterval95: [2]float64{mean - z95*se, mean + z95*se},
		NumSimulations:       numSimulations,
		SimulationTime:       time.Since(start),
	}, nil
}

// simulate 分块并行生成路径，返回按路径下标排列的贴现收益.
func (e *MonteCarloEngine) simulate(gbm *GeometricBrownianMotion, payoff payoffFunc, discount float64, n, steps int) []float64 {
	out := make([]float64, n)
	chunks := (n + e.chunkSize - 1) / e.chunkSize

	// 子种子必须在任何协程启动前按分块顺序取出
	seeds := make([][2]uint64, chunks)
	for i := range seeds {
		seeds[i] = [2]uint64{e.rng.Uint64(), e.rng.Uint64()}
	}

	p := pool.New().WithMaxGoroutines(min(e.workers, chunks))
	for i := range chunks {
		lo := i * e.chunkSize
		hi := min(lo+e.chunkSize, n)
		seed := seeds[i]
		p.Go(func() {
			rng := rand.New(rand.NewPCG(seed[0], seed[1]))
			path := make([]float64, steps+1)
			for j := lo; j < hi; j++ {
				gbm.SimulateInto(rng, path)
				out[j] = payoff(path) * discount
			}
		})
	}
	p.Wait()
	return out
}

// Pricer 返回一个 finance.Pricer，每次定价都用同一种子新建引擎，
// 各扰动合约共享同一组随机数 (共同随机数).
func Pricer(spec Spec, numSimulations, numSteps int, seed uint64, opts ...Option) finance.Pricer {
	return finance.PricerFunc(func(c finance.Contract) (float64, error) {
		engine := NewMonteCarloEngine(append(slices.Clip(opts), WithSeed(seed))...)
		res, err := engine.Price(c, spec, numSimulations, numSteps)
		if err != nil {
			return 0, err
		}
		return res.Price, nil
	})
}
