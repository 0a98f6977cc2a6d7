package entitlements

// Limits represents the entitlements derived from a subscription tier.
// Keep this small and stable: payment-service relies on OnlinePayments to
// gate checkout preference creation.
type Limits struct {
	Tier                   string `json:"tier"`
	MaxCourts              int32  `json:"max_courts"`
	MaxMonthlyAppointments int32  `json:"max_monthly_appointments"`
	OnlinePayments         bool   `json:"online_payments"`
}

func LimitsForTier(tier string) Limits {
	switch tier {
	case "starter":
		return Limits{
			Tier:                   "starter",
			MaxCourts:              2,
			MaxMonthlyAppointments: 300,
			OnlinePayments:         true,
		}
	case "pro":
		return Limits{
			Tier:                   "pro",
			MaxCourts:              20,
			MaxMonthlyAppointments: 5000,
			OnlinePayments:         true,
		}
	default:
		return Limits{
			Tier:                   "free",
			MaxCourts:              1,
			MaxMonthlyAppointments: 50,
			OnlinePayments:         false,
		}
	}
}
