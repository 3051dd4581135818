package sim

// Counter accumulates demo bidding activity.
type Counter struct {
	Bids       int
	HighestBid uint64
}

func (c *Counter) Add(amount uint64) {
	c.Bids++
	if amount > c.HighestBid {
		c.HighestBid = amount
	}
}
