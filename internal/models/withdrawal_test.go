package models

import "testing"

func TestWithdrawalStatusTransitions(t *testing.T) {
	allowed := []struct {
		from, to WithdrawalStatus
	}{
		{WithdrawalStatusPending, WithdrawalStatusApproved},
		{WithdrawalStatusPending, WithdrawalStatusRejected},
		{WithdrawalStatusApproved, WithdrawalStatusProcessing},
		{WithdrawalStatusProcessing, WithdrawalStatusCompleted},
		{WithdrawalStatusProcessing, WithdrawalStatusFailed},
		{WithdrawalStatusRejected, WithdrawalStatusFailed},
	}
	for _, tc := range allowed {
		if !tc.from.CanTransition(tc.to) {
			t.Fatalf("expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}

	forbidden := []struct {
		from, to WithdrawalStatus
	}{
		{WithdrawalStatusPending, WithdrawalStatusProcessing},
		{WithdrawalStatusPending, WithdrawalStatusCompleted},
		{WithdrawalStatusApproved, WithdrawalStatusCompleted},
		{WithdrawalStatusApproved, WithdrawalStatusFailed},
		{WithdrawalStatusProcessing, WithdrawalStatusApproved},
		{WithdrawalStatusRejected, WithdrawalStatusCompleted},
		{WithdrawalStatusCompleted, WithdrawalStatusFailed},
		{WithdrawalStatusFailed, WithdrawalStatusCompleted},
		{WithdrawalStatusCompleted, WithdrawalStatusProcessing},
	}
	for _, tc := range forbidden {
		if tc.from.CanTransition(tc.to) {
			t.Fatalf("expected %s -> %s to be forbidden", tc.from, tc.to)
		}
	}
}

func TestWithdrawalStatusFinal(t *testing.T) {
	finals := map[WithdrawalStatus]bool{
		WithdrawalStatusPending:    false,
		WithdrawalStatusApproved:   false,
		WithdrawalStatusProcessing: false,
		WithdrawalStatusCompleted:  true,
		WithdrawalStatusFailed:     true,
		WithdrawalStatusRejected:   false,
	}
	for status, want := range finals {
		if got := status.Final(); got != want {
			t.Fatalf("Final(%s) = %v, want %v", status, got, want)
		}
	}
}

func TestRoundAmount(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{0, 0},
		{1, 1},
		{0.12345674, 0.1234567},
		{0.12345676, 0.1234568},
		{100.0 / 3.0, 33.3333333},
		{-0.12345674, -0.1234567},
	}
	for _, tc := range cases {
		if got := RoundAmount(tc.in); got != tc.want {
			t.Fatalf("RoundAmount(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	if got := FormatAmount(30); got != "30" {
		t.Fatalf("FormatAmount(30) = %q", got)
	}
	if got := FormatAmount(0.1234567); got != "0.1234567" {
		t.Fatalf("FormatAmount(0.1234567) = %q", got)
	}
	if got := FormatAmount(12.5000000); got != "12.5" {
		t.Fatalf("FormatAmount(12.5) = %q", got)
	}
}

func TestEarningKey(t *testing.T) {
	if got := EarningKey("2025-01-31", "recipient-9"); got != "dist-2025-01-31-recipient-9" {
		t.Fatalf("EarningKey = %q", got)
	}
}
