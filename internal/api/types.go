package api

// SessionResponse from GET /session
type SessionResponse struct {
	Login      string `json:"login"`
	Server     string `json:"server"`
	FeedUp     bool   `json:"feed_up"`
	ServerTime string `json:"server_time"`
}

// SymbolsResponse from GET /symbols
type SymbolsResponse struct {
	Symbols []APISymbol `json:"symbols"`
	Cursor  string      `json:"cursor"`
}

// APISymbol is one tradable instrument as listed by the gateway.
type APISymbol struct {
	Symbol      string `json:"symbol"`
	Description string `json:"description"`
	Path        string `json:"path"`
	Visible     bool   `json:"visible"`
}

// TickResponse from GET /symbols/{ticker}/tick
type TickResponse struct {
	Tick *APITick `json:"tick"`
}

// APITick is the latest top-of-book for a symbol. Prices are decimal strings.
type APITick struct {
	Bid     string `json:"bid"`
	Ask     string `json:"ask"`
	Last    string `json:"last"`
	Volume  int64  `json:"volume"`
	TimeMsc int64  `json:"time_msc"` // Unix milliseconds
}

// BarsResponse from GET /symbols/{ticker}/bars
type BarsResponse struct {
	Bars []APIBar `json:"bars"`
}

// APIBar is one OHLC bar. Time is the bar open in Unix seconds.
type APIBar struct {
	Time       int64  `json:"time"`
	Open       string `json:"open"`
	High       string `json:"high"`
	Low        string `json:"low"`
	Close      string `json:"close"`
	TickVolume int64  `json:"tick_volume"`
}

// GetSymbolsOptions filters GET /symbols.
type GetSymbolsOptions struct {
	Limit  int
	Cursor string
	Group  string // Path prefix filter, e.g. "BOVESPA"
}
