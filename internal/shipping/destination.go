package shipping

import (
	"context"
	"strings"
)

// Destination is where a completed order ships to.
type Destination struct {
	FullName      string `json:"fullName"`
	StreetAddress string `json:"streetAddress"`
	City          string `json:"city"`
	State         string `json:"state"`
	ZipCode       string `json:"zipCode"`
	Country       string `json:"country"`
	PhoneNumber   string `json:"phoneNumber"`
}

// FormattedAddress renders the destination as a postal block:
//
//	Alex Johnson
//	123 Tech Boulevard
//	Los Angeles, CA 90210
//	United States
//
// Empty parts are skipped.
func (d Destination) FormattedAddress() string {
	lines := make([]string, 0, 4)
	for _, l := range []string{d.FullName, d.StreetAddress, d.cityLine(), d.Country} {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return strings.Join(lines, "\n")
}

func (d Destination) cityLine() string {
	city := strings.TrimSpace(d.City)
	region := strings.TrimSpace(strings.TrimSpace(d.State) + " " + strings.TrimSpace(d.ZipCode))
	switch {
	case city == "":
		return region
	case region == "":
		return city
	default:
		return city + ", " + region
	}
}

// Provider supplies the destination for a completed payment.
type Provider interface {
	Destination(ctx context.Context) Destination
}

// Static always returns the same destination.
type Static struct {
	Address Destination
}

// Demo returns a Static provider with the demo customer's address.
func Demo() Static {
	return Static{Address: Destination{
		FullName:      "Alex Johnson",
		StreetAddress: "123 Tech Boulevard",
		City:          "Los Angeles",
		State:         "CA",
		ZipCode:       "90210",
		Country:       "United States",
		PhoneNumber:   "(310) 555-1234",
	}}
}

func (s Static) Destination(context.Context) Destination { return s.Address }
