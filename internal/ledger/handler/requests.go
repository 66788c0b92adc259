package handler

type mintRequest struct {
	Recipient string `json:"recipient"`
	Amount    uint64 `json:"amount"`
}

type mintResponse struct {
	Recipient string `json:"recipient"`
	Minted    uint64 `json:"minted"`
	FeeShares uint64 `json:"fee_shares"`
	Supply    uint64 `json:"supply"`
}

type directTransferRequest struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

type transferRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

type redeemRequest struct {
	Shares uint64 `json:"shares"`
}

type redeemResponse struct {
	Holder  string `json:"holder"`
	Shares  uint64 `json:"shares"`
	Payout  uint64 `json:"payout"`
	Supply  uint64 `json:"supply"`
	Reserve uint64 `json:"reserve"`
}

type distributeRequest struct {
	Percent uint64 `json:"percent"`
}

type payoutResponse struct {
	Identity string `json:"identity"`
	Amount   uint64 `json:"amount"`
}

type distributeResponse struct {
	Total   uint64           `json:"total"`
	Payouts []payoutResponse `json:"payouts"`
	Reserve uint64           `json:"reserve"`
}

type depositRequest struct {
	Amount uint64 `json:"amount"`
}

type reserveResponse struct {
	Reserve uint64 `json:"reserve"`
}

type supplyResponse struct {
	TotalSupply uint64 `json:"total_supply"`
	Holders     int    `json:"holders"`
}

type balanceResponse struct {
	Identity string `json:"identity"`
	Balance  uint64 `json:"balance"`
}

type holdingResponse struct {
	Identity string `json:"identity"`
	Balance  uint64 `json:"balance"`
}

type statusResponse struct {
	Status string `json:"status"`
}
