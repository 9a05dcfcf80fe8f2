package domain

import "testing"

// FuzzParseAchievementID checks parsing never panics and valid ids round-trip.
func FuzzParseAchievementID(f *testing.F) {
	f.Add("")
	f.Add("0")
	f.Add("18446744073709551615")
	f.Add("18446744073709551616")
	f.Add("-0")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseAchievementID(input)
		if err != nil {
			return
		}
		roundTrip, err := ParseAchievementID(id.String())
		if err != nil {
			t.Errorf("valid id failed round-trip: %v", err)
		}
		if roundTrip != id {
			t.Error("round-trip changed id value")
		}
	})
}

// FuzzParseAddress checks that any accepted address re-parses from its hex form.
func FuzzParseAddress(f *testing.F) {
	f.Add("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	f.Add("0x")
	f.Add("70997970c51812dc3a010c7d01b50e0d17dc79c8")

	f.Fuzz(func(t *testing.T, input string) {
		addr, err := ParseAddress(input)
		if err != nil {
			return
		}
		again, err := ParseAddress(addr.Hex())
		if err != nil || again != addr {
			t.Errorf("address %q did not round-trip", input)
		}
	})
}
