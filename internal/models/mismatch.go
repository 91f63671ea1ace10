package models

import "fmt"

// Mismatch records an equipment node whose connected load exceeds its capacity.
// It is derived on every scan and never persisted.
type Mismatch struct {
	Equipment string  // equipment key
	Name      string  // display name
	TotalLoad float64 // Total Connected Load, 0 when missing
	Capacity  float64 // Panel Capacity, 0 when missing
}

// Excess returns how far the load is above capacity.
func (m Mismatch) Excess() float64 {
	return m.TotalLoad - m.Capacity
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s (%s): load %.2f > capacity %.2f", m.Name, m.Equipment, m.TotalLoad, m.Capacity)
}
