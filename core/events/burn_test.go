package events

import (
	"math/big"
	"testing"

	"burnledger/crypto"
)

func TestBurnPoolPaidAttributes(t *testing.T) {
	var recipient [20]byte
	recipient[19] = 7
	evt := BurnPoolPaid{
		Pool:      "sscrt",
		Recipient: recipient,
		Base:      big.NewInt(100),
		Bonus:     big.NewInt(25),
		Remaining: big.NewInt(875),
	}.Event()
	if evt.Type != TypeBurnPoolPaid {
		t.Fatalf("type = %s", evt.Type)
	}
	if evt.Attr("amount") != "125" || evt.Attr("remaining") != "875" {
		t.Fatalf("unexpected attributes %+v", evt.Attributes)
	}
	if evt.Attr("recipient") != crypto.FormatAddress(recipient) {
		t.Fatalf("recipient = %s", evt.Attr("recipient"))
	}
	if evt.Attr("token") != "" {
		t.Fatalf("zero token must render empty, got %q", evt.Attr("token"))
	}
}

func TestBurnPoolsReplacedSkipsBlankNames(t *testing.T) {
	evt := BurnPoolsReplaced{Pools: []string{"a", " ", "b "}}.Event()
	if got := evt.Attr("pools"); got != "a,b" {
		t.Fatalf("pools = %q", got)
	}
}

func TestRecorderFlushReleasesInOrder(t *testing.T) {
	rec := &Recorder{}
	rec.Emit(BurnActiveChanged{Active: false})
	rec.Emit(BurnSettled{Items: 2})
	if got := len(rec.Events()); got != 2 {
		t.Fatalf("buffered %d events", got)
	}

	sink := &Recorder{}
	rec.Flush(sink)
	events := sink.Events()
	if len(events) != 2 || events[0].EventType() != TypeBurnActiveChanged || events[1].EventType() != TypeBurnSettled {
		t.Fatalf("unexpected flush order %+v", events)
	}
	if len(rec.Events()) != 0 {
		t.Fatalf("flush must clear the buffer")
	}

	rec.Emit(BurnSettled{})
	rec.Reset()
	rec.Flush(sink)
	if len(sink.Events()) != 2 {
		t.Fatalf("reset events must not be released")
	}
}
