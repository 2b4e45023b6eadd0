package model

import "fmt"

// Pence is a GBP amount in minor units. All donation math is integer
// arithmetic; fractional pounds never appear.
type Pence int64

func (p Pence) String() string {
	sign := ""
	if p < 0 {
		sign = "-"
		p = -p
	}
	return fmt.Sprintf("%s£%d.%02d", sign, p/100, p%100)
}
