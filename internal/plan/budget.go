package plan

// Budget carries the run-wide safety ceilings. Every scheduler call takes the
// same Budget, so the total work of a run is bounded by its initial values.
// Each priority task and each non-fixed chain member takes one iteration and
// one update; fixed chain members take neither.
type Budget struct {
	iterations int
	updates    int

	usedIterations int
	usedUpdates    int
}

func NewBudget(iterations, updates int) *Budget {
	return &Budget{iterations: iterations, updates: updates}
}

// TakeIteration consumes one placement attempt. It returns false once the
// ceiling is reached.
func (b *Budget) TakeIteration() bool {
	if b.usedIterations >= b.iterations {
		return false
	}
	b.usedIterations++
	return true
}

// TakeUpdate consumes one date assignment.
func (b *Budget) TakeUpdate() bool {
	if b.usedUpdates >= b.updates {
		return false
	}
	b.usedUpdates++
	return true
}

func (b *Budget) IterationsLeft() int { return b.iterations - b.usedIterations }
func (b *Budget) UpdatesLeft() int    { return b.updates - b.usedUpdates }
