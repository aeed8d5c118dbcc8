package shared

import "fmt"

// InventorySyncLockKey guards the scheduled full reconciliation.
const InventorySyncLockKey = "stock:inventory:sync_all:lock"

// ProductSyncLockKey builds redis keys for per product recomputation.
func ProductSyncLockKey(productID int64) string {
	return fmt.Sprintf("stock:inventory:product:%d:lock", productID)
}
