package service

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// Invoice number prefixes
const (
	InvoicePrefixCheckout = "INV"
	InvoicePrefixCredit   = "CR"
)

// InvoiceNumberer hands out unique invoice numbers
type InvoiceNumberer interface {
	Next(prefix string) string
}

// SnowflakeInvoices numbers invoices with time-ordered snowflake ids
type SnowflakeInvoices struct {
	node *snowflake.Node
}

// NewSnowflakeInvoices creates a numberer for a node id in [0, 1023]
func NewSnowflakeInvoices(nodeID int64) (*SnowflakeInvoices, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %w", err)
	}
	return &SnowflakeInvoices{node: node}, nil
}

// Next returns prefix followed by a fresh id
func (s *SnowflakeInvoices) Next(prefix string) string {
	return prefix + s.node.Generate().String()
}
