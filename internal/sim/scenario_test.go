package sim

import "testing"

func TestNextBidderNeverRepeatsLeader(t *testing.T) {
	g := NewGenerator(42)
	prev := ""
	for i := 0; i < 50; i++ {
		b := g.NextBidder()
		if b == prev {
			t.Fatalf("bidder %s repeated as leader at step %d", b, i)
		}
		prev = b
	}
}

func TestCounter(t *testing.T) {
	var c Counter
	for _, amt := range []uint64{1001, 1002, 1003} {
		c.Add(amt)
	}
	if c.Bids != 3 || c.HighestBid != 1003 {
		t.Fatalf("unexpected counter: %+v", c)
	}
}
