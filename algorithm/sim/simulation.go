// Package sim - 风险中性蒙特卡洛模拟。
package sim

import (
	"math"
	"math/rand/v2"
)

// GeometricBrownianMotion 几何布朗运动模拟 (对数正态精确离散).
type GeometricBrownianMotion struct {
	initialPrice float64
	drift        float64 // 漂移，风险中性下为无风险利率.
	volatility   float64 // 波动.
	timeStep     float64 // 时间步 dt = T/M.
}

// NewGeometricBrownianMotion 创建 GBM 模拟.
func NewGeometricBrownianMotion(initialPrice, drift, volatility, timeStep float64) *GeometricBrownianMotion {
	return &GeometricBrownianMotion{
		initialPrice: initialPrice,
		drift:        drift,
		volatility:   volatility,
		timeStep:     timeStep,
	}
}

// Simulate 模拟一条 steps+1 个点的价格路径，首点为初始价格.
func (gbm *GeometricBrownianMotion) Simulate(rng *rand.Rand, steps int) []float64 {
	path := make([]float64, steps+1)
	gbm.SimulateInto(rng, path)
	return path
}

// SimulateInto 复用 path 生成路径，len(path)-1 即步数.
// S_i = S_0 · exp(Σ (r-σ²/2)dt + σ√dt·Z_j).
func (gbm *GeometricBrownianMotion) SimulateInto(rng *rand.Rand, path []float64) {
	if len(path) == 0 {
		return
	}
	// 预计算常量.
	driftTerm := (gbm.drift - 0.5*gbm.volatility*gbm.volatility) * gbm.timeStep
	volTerm := gbm.volatility * math.Sqrt(gbm.timeStep)

	path[0] = gbm.initialPrice
	logSum := 0.0
	for i := 1; i < len(path); i++ {
		logSum += driftTerm + volTerm*rng.NormFloat64()
		path[i] = gbm.initialPrice * math.Exp(logSum)
	}
}
