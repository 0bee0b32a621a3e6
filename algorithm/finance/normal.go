package finance

import "gonum.org/v1/gonum/stat/distuv"

// normCDF 标准正态分布累积分布函数。
func normCDF(x float64) float64 {
	return distuv.UnitNormal.CDF(x)
}

// normPDF 标准正态分布概率密度函数。
func normPDF(x float64) float64 {
	return distuv.UnitNormal.Prob(x)
}
