package asker

import (
	"fmt"
	"math/rand"
)

var orderStatuses = []string{"pending", "processing", "shipped", "delivered"}

// Questions produces a reproducible stream of natural-language questions about
// the customers/orders dataset.
type Questions struct {
	rnd              *rand.Rand
	customerIDRange  int
	includeMutations bool
	sequence         int64
}

func NewQuestions(seed int64, customerIDRange int, includeMutations bool) *Questions {
	if customerIDRange <= 0 {
		customerIDRange = 1
	}
	return &Questions{
		rnd:              rand.New(rand.NewSource(seed)),
		customerIDRange:  customerIDRange,
		includeMutations: includeMutations,
	}
}

func (q *Questions) Next() string {
	q.sequence++
	kinds := 7
	if q.includeMutations {
		kinds = 8
	}
	switch q.rnd.Intn(kinds) {
	case 0:
		return "Show me all customers"
	case 1:
		return fmt.Sprintf("Show me customer with ID %d", q.rnd.Intn(q.customerIDRange)+1)
	case 2:
		return fmt.Sprintf("Show me orders with total amount greater than $%d", 25*(q.rnd.Intn(8)+1))
	case 3:
		return "Find the most recent order for each customer"
	case 4:
		return fmt.Sprintf("How many orders are %s?", pickOne(q.rnd, orderStatuses))
	case 5:
		return fmt.Sprintf("List orders placed in the last %d days", q.rnd.Intn(30)+1)
	case 6:
		return fmt.Sprintf("What is the total amount spent by customer %d?", q.rnd.Intn(q.customerIDRange)+1)
	default:
		return fmt.Sprintf("Mark every %s order as %s", pickOne(q.rnd, orderStatuses[:2]), pickOne(q.rnd, orderStatuses[2:]))
	}
}

func (q *Questions) Count() int64 {
	return q.sequence
}

func pickOne(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}
