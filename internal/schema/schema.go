// Package schema describes the relational schema the query generator is
// allowed to target. The descriptor is static and read-only; it is serialized
// verbatim into generation prompts.
package schema

import (
	"encoding/json"
	"fmt"
)

type Column struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

type Table struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Columns     []Column `json:"columns"`
}

type Relationship struct {
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Tables      [2]string `json:"tables"`
	Keys        [2]string `json:"keys"`
}

type Descriptor struct {
	Tables        []Table        `json:"tables"`
	Relationships []Relationship `json:"relationships"`
}

var defaultDescriptor = Descriptor{
	Tables: []Table{
		{
			Name:        "customers",
			Description: "Contains customer information",
			Columns: []Column{
				{Name: "id", Type: "INTEGER", Description: "Unique identifier for the customer"},
				{Name: "name", Type: "STRING", Description: "Customer's full name"},
				{Name: "email", Type: "STRING", Description: "Customer's email address"},
				{Name: "phone", Type: "STRING", Description: "Customer's phone number"},
				{Name: "address", Type: "STRING", Description: "Customer's address"},
			},
		},
		{
			Name:        "orders",
			Description: "Contains order information",
			Columns: []Column{
				{Name: "id", Type: "INTEGER", Description: "Unique identifier for the order"},
				{Name: "customer_id", Type: "INTEGER", Description: "Foreign key to customers table"},
				{Name: "order_date", Type: "DATE", Description: "Date when the order was placed"},
				{Name: "total_amount", Type: "FLOAT", Description: "Total amount of the order"},
				{Name: "status", Type: "STRING", Description: "Current status of the order (pending, processing, shipped, delivered)"},
				{Name: "notes", Type: "TEXT", Description: "Additional notes about the order"},
			},
		},
	},
	Relationships: []Relationship{
		{
			Type:        "1:N",
			Description: "One customer can have many orders",
			Tables:      [2]string{"customers", "orders"},
			Keys:        [2]string{"id", "customer_id"},
		},
	},
}

// Default returns a copy of the customers/orders descriptor. Callers may
// modify the copy freely.
func Default() Descriptor {
	return defaultDescriptor.clone()
}

func (d Descriptor) clone() Descriptor {
	out := Descriptor{
		Tables:        make([]Table, len(d.Tables)),
		Relationships: append([]Relationship(nil), d.Relationships...),
	}
	for i, table := range d.Tables {
		table.Columns = append([]Column(nil), table.Columns...)
		out.Tables[i] = table
	}
	return out
}

func (d Descriptor) TableNames() []string {
	names := make([]string, 0, len(d.Tables))
	for _, table := range d.Tables {
		names = append(names, table.Name)
	}
	return names
}

func (d Descriptor) Table(name string) (Table, bool) {
	for _, table := range d.Tables {
		if table.Name == name {
			return table, true
		}
	}
	return Table{}, false
}

func (d Descriptor) JSON() (string, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("marshal schema descriptor: %w", err)
	}
	return string(raw), nil
}

func (d Descriptor) IndentedJSON() (string, error) {
	raw, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal schema descriptor: %w", err)
	}
	return string(raw), nil
}
