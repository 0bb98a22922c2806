package bus

// Bus topics. These names are shared with every producer and consumer of
// the realtime pipeline and must not change independently.
const (
	TopicTrades = "stock_trades_realtime"
	TopicBars   = "stock_bars_staging"
)

// Consumer groups for the stream processor's persistence loops.
const (
	GroupTradesPersist = "trades-persist"
	GroupBarsPersist   = "bars-persist"
)
