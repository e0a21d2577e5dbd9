package payment

// CapabilityChecker answers whether the device can pay at all and whether it
// holds a card on one of the given networks.
type CapabilityChecker interface {
	CanMakePayments() bool
	CanMakePaymentsUsingNetworks(networks []Network) bool
}

// StaticCapability is a fixed CapabilityChecker. An empty Cards list means
// every network is usable when Device is true.
type StaticCapability struct {
	Device bool
	Cards  []Network
}

func (c StaticCapability) CanMakePayments() bool { return c.Device }

func (c StaticCapability) CanMakePaymentsUsingNetworks(networks []Network) bool {
	if !c.Device {
		return false
	}
	if len(c.Cards) == 0 {
		return len(networks) > 0
	}
	for _, want := range networks {
		for _, have := range c.Cards {
			if want == have {
				return true
			}
		}
	}
	return false
}
