package postgresql

// migrations returns the ordered schema migrations for the shipments store.
// Stages are stored as a JSONB column: the timeline is always read and
// rewritten as a whole, so per-stage rows would only add join overhead.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS shipments (
				id VARCHAR(12) PRIMARY KEY,
				type VARCHAR(16) NOT NULL,
				user_id TEXT NOT NULL,
				order_id TEXT NOT NULL,
				product_id TEXT NOT NULL,
				address TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL,
				stages JSONB NOT NULL,
				estimated_completion TIMESTAMP WITH TIME ZONE NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_shipments_created_at ON shipments (created_at DESC);
			CREATE INDEX IF NOT EXISTS idx_shipments_status ON shipments (status);
		`,
	}
}
