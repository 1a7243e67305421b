package models

import "time"

// TransferRecord is one immutable entry in the global ownership-transfer
// ledger. The ledger is append-only and survives everything short of a
// vault reset of one of the involved entities.
type TransferRecord struct {
	ID               string
	RecordKey        string
	FromEntityID     string
	ToEntityID       string
	TransferredAt    time.Time
	AutoShareGranted bool
}
