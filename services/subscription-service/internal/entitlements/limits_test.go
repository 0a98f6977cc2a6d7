package entitlements

import "testing"

func TestLimitsForTier(t *testing.T) {
	cases := []struct {
		tier string
		want Limits
	}{
		{"free", Limits{Tier: "free", MaxCourts: 1, MaxMonthlyAppointments: 50, OnlinePayments: false}},
		{"starter", Limits{Tier: "starter", MaxCourts: 2, MaxMonthlyAppointments: 300, OnlinePayments: true}},
		{"pro", Limits{Tier: "pro", MaxCourts: 20, MaxMonthlyAppointments: 5000, OnlinePayments: true}},
		{"", Limits{Tier: "free", MaxCourts: 1, MaxMonthlyAppointments: 50, OnlinePayments: false}},
		{"enterprise", Limits{Tier: "free", MaxCourts: 1, MaxMonthlyAppointments: 50, OnlinePayments: false}},
	}
	for _, tc := range cases {
		if got := LimitsForTier(tc.tier); got != tc.want {
			t.Errorf("LimitsForTier(%q) = %+v, want %+v", tc.tier, got, tc.want)
		}
	}
}

func TestFreeTierNeverAllowsOnlinePayments(t *testing.T) {
	if LimitsForTier("free").OnlinePayments {
		t.Fatal("free tier must not enable online payments")
	}
}
