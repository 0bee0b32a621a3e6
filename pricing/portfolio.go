package pricing

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wyfcoding/optionpricer/algorithm/finance"
	"github.com/wyfcoding/optionpricer/tracing"
	"github.com/wyfcoding/optionpricer/xerrors"
)

// Position 组合中的一条腿，负数量表示卖出。
type Position struct {
	Contract finance.Contract
	Quantity float64
}

// PositionReport 单腿报价。
type PositionReport struct {
	Quote    *Quote  `json:"option"`
	Quantity float64 `json:"quantity"`
}

// PortfolioSummary 按数量加权的组合汇总。
type PortfolioSummary struct {
	TotalValue float64 `json:"total_value"`
	NetDelta   float64 `json:"net_delta"`
	NetGamma   float64 `json:"net_gamma"`
	NetVega    float64 `json:"net_vega"`
	NetTheta   float64 `json:"net_theta"`
	NetRho     float64 `json:"net_rho"`
}

// RiskAnalysis 由净 Greeks 推出的风险指标。
type RiskAnalysis struct {
	DeltaEquivalentShares float64 `json:"delta_equivalent_shares"`
	DailyThetaDecay       float64 `json:"daily_theta_decay"`
	MonthlyThetaDecay     float64 `json:"monthly_theta_decay"`
	VolSensitivity1Pct    float64 `json:"vol_sensitivity_1pct"`
}

// 对冲方向。
const (
	HedgeBuy  = "buy"
	HedgeSell = "sell"
	HedgeNone = "none"
)

// DeltaHedge 使净 Delta 归零所需的标的交易。
type DeltaHedge struct {
	Action      string  `json:"action"`
	Description string  `json:"description"`
	Shares      float64 `json:"shares"`
}

// PortfolioReport AnalyzePortfolio 的结果。
type PortfolioReport struct {
	Positions []PositionReport `json:"positions"`
	Hedge     DeltaHedge       `json:"delta_hedge"`
	Summary   PortfolioSummary `json:"portfolio_summary"`
	Risk      RiskAnalysis     `json:"risk_analysis"`
}

type legResult struct {
	greeks finance.GreeksResult
	price  float64
}

// AnalyzePortfolio 并发为各腿定价并计算解析 Greeks，再按数量加权汇总。
// 汇总按输入顺序累加，结果与并发调度无关。
func (s *Service) AnalyzePortfolio(ctx context.Context, positions []Position) (report *PortfolioReport, err error) {
	ctx, finish := tracing.Start(ctx, "pricing.portfolio")
	start := time.Now()
	defer func() {
		s.metrics.ObservePricing("portfolio", err, time.Since(start))
		finish(err)
	}()

	if len(positions) == 0 {
		return nil, xerrors.ErrEmptyData.WithDetail("no positions provided")
	}
	tracing.AddTag(ctx, "portfolio.legs", len(positions))
	defer s.logger.LogDuration(ctx, "portfolio analysis", "legs", len(positions))()

	legs := make([]legResult, len(positions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, pos := range positions {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			price, err := s.bs.PriceOption(pos.Contract)
			if err != nil {
				return fmt.Errorf("position %d (%s): %w", i, pos.Contract, err)
			}
			greeks, err := s.greeks.Analytical(pos.Contract)
			if err != nil {
				return fmt.Errorf("position %d (%s): %w", i, pos.Contract, err)
			}
			legs[i] = legResult{price: price, greeks: greeks}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.ErrorContext(ctx, "portfolio analysis failed", "error", err)
		return nil, err
	}

	report = &PortfolioReport{Positions: make([]PositionReport, len(positions))}
	var net finance.GreeksResult
	var total float64
	for i, pos := range positions {
		leg := legs[i]
		q := pos.Quantity
		net.Delta += q * leg.greeks.Delta
		net.Gamma += q * leg.greeks.Gamma
		net.Vega += q * leg.greeks.Vega
		net.Theta += q * leg.greeks.Theta
		net.Rho += q * leg.greeks.Rho
		total += q * leg.price

		quote := newQuote("black_scholes", pos.Contract, leg.price)
		quote.Greeks = roundGreeks(leg.greeks)
		report.Positions[i] = PositionReport{Quantity: q, Quote: quote}
	}

	report.Summary = PortfolioSummary{
		TotalValue: round(total, 2),
		NetDelta:   round(net.Delta, 4),
		NetGamma:   round(net.Gamma, greeksPlaces),
		NetVega:    round(net.Vega, 4),
		NetTheta:   round(net.Theta, 4),
		NetRho:     round(net.Rho, 4),
	}
	report.Risk = RiskAnalysis{
		DeltaEquivalentShares: round(net.Delta, 2),
		DailyThetaDecay:       round(math.Abs(net.Theta), 2),
		MonthlyThetaDecay:     round(math.Abs(net.Theta)*30, 2),
		VolSensitivity1Pct:    round(net.Vega, 2),
	}
	report.Hedge = deltaHedge(net.Delta)
	return report, nil
}

// deltaHedge 对冲量为 -netDelta 股，取整到整股。
func deltaHedge(netDelta float64) DeltaHedge {
	shares := round(-netDelta, 0)
	switch {
	case shares > 0:
		return DeltaHedge{Action: HedgeBuy, Shares: shares, Description: fmt.Sprintf("Buy %.0f shares to neutralize delta", shares)}
	case shares < 0:
		return DeltaHedge{Action: HedgeSell, Shares: -shares, Description: fmt.Sprintf("Sell %.0f shares to neutralize delta", -shares)}
	default:
		return DeltaHedge{Action: HedgeNone, Description: "Portfolio is delta neutral"}
	}
}
