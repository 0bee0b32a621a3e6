package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/wyfcoding/optionpricer/algorithm/types"
	"github.com/wyfcoding/optionpricer/pricing"
	"github.com/wyfcoding/optionpricer/validator"
)

// marketFile 行情快照文件格式:
//
//	{
//	  "risk_free_rate": 0.045,
//	  "symbols": {
//	    "AAPL": {
//	      "stock_price": 187.5,
//	      "closes": [180.1, 181.3, ...],
//	      "implied_vols": [{"option_type": "call", "strike": 190, "volatility": 0.27}]
//	    }
//	  }
//	}
type marketFile struct {
	RiskFreeRate *float64                `json:"risk_free_rate" validate:"omitempty,gte=0"`
	Symbols      map[string]symbolMarket `json:"symbols"        validate:"dive"`
}

type symbolMarket struct {
	ImpliedVols []impliedVol `json:"implied_vols" validate:"dive"`
	Closes      []float64    `json:"closes"       validate:"dive,gt=0"`
	StockPrice  float64      `json:"stock_price"  validate:"gt=0"`
}

type impliedVol struct {
	OptionType string  `json:"option_type"`
	Strike     float64 `json:"strike"     validate:"gt=0"`
	Volatility float64 `json:"volatility" validate:"gt=0"`
}

func loadMarketFile(path string) (*pricing.StaticProvider, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read market file: %w", err)
	}
	var mf marketFile
	if err := json.Unmarshal(b, &mf); err != nil {
		return nil, fmt.Errorf("decode market file: %w", err)
	}
	if err := validator.Struct(mf); err != nil {
		return nil, err
	}
	return mf.provider()
}

func (mf marketFile) provider() (*pricing.StaticProvider, error) {
	p := pricing.NewStaticProvider()
	if mf.RiskFreeRate != nil {
		p.SetRiskFreeRate(*mf.RiskFreeRate)
	}
	for symbol, sm := range mf.Symbols {
		p.SetStockPrice(symbol, sm.StockPrice)
		if len(sm.Closes) > 0 {
			p.SetHistoricalCloses(symbol, sm.Closes)
		}
		for _, iv := range sm.ImpliedVols {
			ot, err := types.ParseOptionType(iv.OptionType)
			if err != nil {
				return nil, fmt.Errorf("%s implied vol: %w", symbol, err)
			}
			p.SetImpliedVolatility(symbol, ot, iv.Strike, iv.Volatility)
		}
	}
	return p, nil
}
