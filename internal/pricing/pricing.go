// Package pricing maps a job's type and urgency to its application cost in
// credits. It is the single source of truth for the cost: the quote endpoint
// and the debit path call the same function with the same inputs.
package pricing

import "math"

const baseCost = 10

var urgencyMultipliers = map[string]float64{
	"low":       0.8,
	"standard":  1.0,
	"high":      1.25,
	"urgent":    1.5,
	"emergency": 2.0,
}

var jobTypeMultipliers = map[string]float64{
	"handyman":   0.9,
	"electrical": 1.0,
	"plumbing":   1.0,
	"carpentry":  1.0,
	"painting":   0.9,
	"hvac":       1.2,
	"roofing":    1.3,
}

// Cost returns ceil(base * urgency * jobType). Unknown job types and urgency
// levels fall back to a 1.0 multiplier.
func Cost(jobType, urgencyLevel string) int {
	urgency, ok := urgencyMultipliers[urgencyLevel]
	if !ok {
		urgency = 1.0
	}
	kind, ok := jobTypeMultipliers[jobType]
	if !ok {
		kind = 1.0
	}
	return int(math.Ceil(baseCost * urgency * kind))
}
