package domain

// AccountState is a derived snapshot of the account, aggregated from the
// ledger on demand. It is recomputed, never independently stored.
type AccountState struct {
	Equity        float64 // Current account equity in quote units
	OpenPositions int     // Count of pending + open positions
	DailyPNL      float64 // Realized P&L since the last daily reset
	ReservedRisk  float64 // Quote units reserved by pending/open positions if all stops hit
}
