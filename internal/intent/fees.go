package intent

// Fee 是静态的手续费估算。
type Fee struct {
	Amount float64 `json:"amount"`
	Symbol string  `json:"symbol"`
}

var networkFees = map[Network]Fee{
	NetworkEthereum:  {Amount: 0.002, Symbol: "ETH"},
	NetworkSepolia:   {Amount: 0.001, Symbol: "ETH"},
	NetworkSolana:    {Amount: 0.00001, Symbol: "SOL"},
	NetworkBase:      {Amount: 0.0001, Symbol: "ETH"},
	NetworkPolygon:   {Amount: 0.01, Symbol: "MATIC"},
	NetworkAvalanche: {Amount: 0.01, Symbol: "AVAX"},
	NetworkBitcoin:   {Amount: 0.0001, Symbol: "BTC"},
}

var defaultFee = Fee{Amount: 0.001, Symbol: "ETH"}

// EstimateFee 返回网络的静态手续费。
func EstimateFee(network Network) Fee {
	if fee, ok := networkFees[network]; ok {
		return fee
	}
	return defaultFee
}
