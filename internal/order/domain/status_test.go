package domain

import "testing"

func TestParseOrderStatus(t *testing.T) {
	valid := []string{"pending", "processing", "shipped", "delivered", "cancelled", "refunded"}
	for _, s := range valid {
		got, err := ParseOrderStatus(s)
		if err != nil {
			t.Fatalf("ParseOrderStatus(%q) returned error: %v", s, err)
		}
		if string(got) != s {
			t.Fatalf("ParseOrderStatus(%q) = %q", s, got)
		}
	}

	for _, s := range []string{"", "not-a-status", "Pending", "canceled", "PAID"} {
		if _, err := ParseOrderStatus(s); err == nil {
			t.Fatalf("ParseOrderStatus(%q) accepted invalid value", s)
		}
	}
}

func TestTerminal(t *testing.T) {
	cases := map[OrderStatus]bool{
		StatusPending:    false,
		StatusProcessing: false,
		StatusShipped:    false,
		StatusDelivered:  false,
		StatusCancelled:  true,
		StatusRefunded:   true,
	}
	for st, want := range cases {
		if got := st.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", st, got, want)
		}
	}
}
