package orders

const (
	TopicOrderPlaced        = "order.placed"
	TopicOrderStatusChanged = "order.status_changed"
	TopicStockRestocked     = "stock.restocked"
	TopicStockLow           = "stock.low"
)

// StockTopics are the topics whose events invalidate cached reads.
var StockTopics = []string{TopicOrderPlaced, TopicOrderStatusChanged, TopicStockRestocked}

// Partition key = item id, so all stock events of one item keep their order.
func PartitionKey(itemID string) []byte { return []byte(itemID) }
