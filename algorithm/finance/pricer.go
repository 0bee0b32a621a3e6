package finance

// Pricer 任何能对合约给出价格的定价器，解析公式与蒙特卡洛均实现此接口。
type Pricer interface {
	Price(c Contract) (float64, error)
}

// PricerFunc 函数适配器。
type PricerFunc func(c Contract) (float64, error)

// Price 实现 Pricer。
func (f PricerFunc) Price(c Contract) (float64, error) {
	return f(c)
}
