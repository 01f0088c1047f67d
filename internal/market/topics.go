package market

import "strconv"

const (
	TopicOrderPlaced   = "order.placed"
	TopicLineFulfilled = "order.line.fulfilled"
)

// Partition key = order id, so all events of one order stay ordered.
func PartitionKey(orderID int64) []byte {
	return []byte(strconv.FormatInt(orderID, 10))
}
