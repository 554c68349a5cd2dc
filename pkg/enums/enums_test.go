package enums

import "testing"

func TestCartStatusValidation(t *testing.T) {
	for _, status := range []CartStatus{CartStatusActive, CartStatusOrdered, CartStatusAbandoned} {
		if !status.IsValid() {
			t.Fatalf("expected %q to be valid", status)
		}
	}
	if CartStatus("converted").IsValid() {
		t.Fatalf("unknown cart status accepted")
	}
	if _, err := ParseCartStatus("shipped"); err == nil {
		t.Fatalf("expected parse error for unknown cart status")
	}
}

func TestOrderStatusTerminality(t *testing.T) {
	terminal := []OrderStatus{OrderStatusFailed, OrderStatusCancelled, OrderStatusRefunded}
	for _, status := range terminal {
		if !status.IsTerminal() {
			t.Fatalf("expected %q to be terminal", status)
		}
	}
	open := []OrderStatus{OrderStatusPending, OrderStatusPaid, OrderStatusReturned}
	for _, status := range open {
		if status.IsTerminal() {
			t.Fatalf("expected %q to allow further transitions", status)
		}
	}
}

func TestPaymentStatusParse(t *testing.T) {
	parsed, err := ParsePaymentStatus("requires_payment_method")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed != PaymentStatusRequiresPaymentMethod {
		t.Fatalf("unexpected value %q", parsed)
	}
	if _, err := ParsePaymentStatus("settled"); err == nil {
		t.Fatalf("expected parse error for unknown payment status")
	}
}

func TestReservationStatusHolds(t *testing.T) {
	if !ReservationStatusActive.Holds() || !ReservationStatusCommitted.Holds() {
		t.Fatalf("active and committed reservations must hold stock")
	}
	if ReservationStatusReleased.Holds() || ReservationStatusExpired.Holds() {
		t.Fatalf("released and expired reservations must not hold stock")
	}
}
