package market

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPartial   Status = "PARTIAL"
	StatusFulfilled Status = "FULFILLED"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusPartial: true, StatusFulfilled: true},
	StatusPartial:   {StatusFulfilled: true},
	StatusFulfilled: {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}
